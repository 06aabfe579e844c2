package groups

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/mkocikowski/libkafka/api/JoinGroup"
	"github.com/mkocikowski/libkafka/api/SyncGroup"
)

func init() {
	rand.Seed(time.Now().UnixNano())
}

type echo struct{}

func (*echo) Type() string          { return "partition" }
func (*echo) Name() string          { return "echo" }
func (*echo) Meta(id string) []byte { return []byte("[]") }

func (*echo) Assign(members []JoinGroup.Member) ([]SyncGroup.Assignment, error) {
	b, _ := json.Marshal([]int32{0, 1, 2})
	assignments := []SyncGroup.Assignment{}
	for _, m := range members {
		a := SyncGroup.Assignment{
			MemberId:   m.MemberId,
			Assignment: b,
		}
		assignments = append(assignments, a)
	}
	return assignments, nil
}

func TestIntegrationJoinAndSync(t *testing.T) {
	c := &GroupMembershipManager{
		Bootstrap: "localhost:9092",
		Topic:     "irrelevant",
		Assigner:  &echo{},
		GroupId:   fmt.Sprintf("test-group-%x", rand.Uint32()),
	}
	c.init()
	for i := 0; i < 10; i++ {
		if err := c.join(); err != nil {
			t.Log(err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if err := c.sync(); err != nil {
			t.Log(err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if c.generationId != 1 {
			t.Fatalf("%+v", c)
		}
		a := c.currentAssignment()
		if len(a.Partitions) != 3 {
			t.Fatalf("%+v", a)
		}
		return
	}
	t.Fatal()
}

func TestIntegrationRun(t *testing.T) {
	c := &GroupMembershipManager{
		Bootstrap: "localhost:9092",
		Topic:     "irrelevant",
		Assigner:  &echo{},
		GroupId:   fmt.Sprintf("test-group-%x", rand.Uint32()),
	}
	assignments := c.Start()
	a := <-assignments
	if len(a.Partitions) != 3 {
		t.Fatalf("%+v", a)
	}
}
