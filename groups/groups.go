// Package groups implements consumer-group membership (join, sync,
// heartbeat) and turns the resulting byte-string assignment into a typed
// Assignment event. It is the module's adaptation of the broker's
// onPartitionsAssigned observable (spec section 6): cmd/consume reads the
// assignment channel and forwards each event both to the batched
// dispatcher's broker client and to the lag monitor.
package groups

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/mkocikowski/libkafka/api/JoinGroup"
	"github.com/mkocikowski/libkafka/api/SyncGroup"
	"github.com/mkocikowski/libkafka/client"
	"github.com/mkocikowski/libkafka/errors"
)

// Assigner decides how to split partitions among group members. It is
// invoked only on the member elected group leader.
type Assigner interface {
	Type() string
	Name() string
	Meta(string) []byte
	Assign([]JoinGroup.Member) ([]SyncGroup.Assignment, error)
}

// Assignment is one partition-assignment event: this member now owns
// Partitions of Topic within GroupId.
type Assignment struct {
	GroupId    string
	MemberId   string
	Topic      string
	Partitions []int32
}

// GroupMembershipManager maintains membership in one consumer group: joins,
// syncs, and heartbeats on a loop, publishing an Assignment after every
// successful (re)join (including the initial one).
type GroupMembershipManager struct {
	Bootstrap string
	Topic     string
	Assigner  Assigner
	GroupId   string
	//
	sync.Mutex
	memberId     string
	generationId int32
	client       *client.GroupClient
	members      []JoinGroup.Member
	assignment   []byte
}

func (c *GroupMembershipManager) init() {
	c.client = &client.GroupClient{
		Bootstrap: c.Bootstrap,
		GroupId:   c.GroupId,
	}
}

func (c *GroupMembershipManager) join() error {
	c.Lock()
	defer c.Unlock()
	req := &client.JoinGroupRequest{
		MemberId:     c.memberId,
		ProtocolType: c.Assigner.Type(),
		ProtocolName: c.Assigner.Name(),
		Metadata:     c.Assigner.Meta(""),
	}
	resp, err := c.client.Join(req)
	if err != nil {
		return err
	}
	if resp.ErrorCode != errors.NONE {
		return &errors.KafkaError{Code: resp.ErrorCode}
	}
	c.memberId = resp.MemberId
	c.generationId = resp.GenerationId
	c.members = resp.Members
	return nil
}

func (c *GroupMembershipManager) sync() error {
	c.Lock()
	defer c.Unlock()
	assignments, err := c.Assigner.Assign(c.members)
	if err != nil {
		return err
	}
	req := &client.SyncGroupRequest{
		MemberId:     c.memberId,
		GenerationId: c.generationId,
		Assignments:  assignments,
	}
	resp, err := c.client.Sync(req)
	if err != nil {
		return err
	}
	if resp.ErrorCode != errors.NONE {
		return &errors.KafkaError{Code: resp.ErrorCode}
	}
	c.assignment = resp.Assignment[:]
	return nil
}

func (c *GroupMembershipManager) heartbeat() error {
	c.Lock()
	defer c.Unlock()
	resp, err := c.client.Heartbeat(c.memberId, c.generationId)
	if err != nil {
		return err
	}
	if resp.ErrorCode != errors.NONE {
		return &errors.KafkaError{Code: resp.ErrorCode}
	}
	return nil
}

func (c *GroupMembershipManager) currentAssignment() Assignment {
	c.Lock()
	defer c.Unlock()
	var partitions []int32
	if err := json.Unmarshal(c.assignment, &partitions); err != nil {
		log.Printf("groups: malformed assignment payload: %v", err)
	}
	return Assignment{
		GroupId:    c.GroupId,
		MemberId:   c.memberId,
		Topic:      c.Topic,
		Partitions: partitions,
	}
}

func (c *GroupMembershipManager) run(assignments chan<- Assignment) {
	for {
		if err := c.heartbeat(); err == nil {
			time.Sleep(time.Second)
			continue
		} else {
			log.Println("groups: heartbeat failed, rejoining:", err)
		}
		if err := c.join(); err != nil {
			log.Println("groups: join failed:", err)
			time.Sleep(time.Second)
			continue
		}
		if err := c.sync(); err != nil {
			log.Println("groups: sync failed:", err)
			time.Sleep(time.Second)
			continue
		}
		assignments <- c.currentAssignment()
		time.Sleep(time.Second)
	}
}

// Start begins the join/sync/heartbeat loop and returns the channel on which
// Assignment events are published, once per successful (re)join.
func (c *GroupMembershipManager) Start() <-chan Assignment {
	c.init()
	assignments := make(chan Assignment)
	go c.run(assignments)
	return assignments
}
