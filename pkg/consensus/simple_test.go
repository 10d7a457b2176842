package consensus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// grantingTransport answers every RequestVote with a grant and every
// AppendEntries with success, at the caller's term.
type grantingTransport struct{}

func (grantingTransport) SendRequestVote(_ context.Context, _ string, args RequestVoteArgs) (RequestVoteReply, error) {
	return RequestVoteReply{Term: args.Term, VoteGranted: true}, nil
}

func (grantingTransport) SendAppendEntries(_ context.Context, _ string, args AppendEntriesArgs) (AppendEntriesReply, error) {
	return AppendEntriesReply{Term: args.Term, Success: true}, nil
}

func TestElectionWinsWithMajorityVotes(t *testing.T) {
	c := NewSimpleCoordinator("n1", []string{"n2", "n3"}, 50*time.Millisecond, grantingTransport{})
	defer c.Stop()
	c.runElection()

	assert.True(t, c.IsLeader())
	assert.Equal(t, "n1", c.LeaderID())
}

func TestHandleRequestVoteGrantsOncePerTerm(t *testing.T) {
	c := NewSimpleCoordinator("n3", nil, 50*time.Millisecond, grantingTransport{})

	reply := c.HandleRequestVote(RequestVoteArgs{Term: 1, CandidateID: "n1"})
	assert.True(t, reply.VoteGranted)

	// Same term, different candidate: already voted for n1.
	reply = c.HandleRequestVote(RequestVoteArgs{Term: 1, CandidateID: "n2"})
	assert.False(t, reply.VoteGranted)

	// Same term, same candidate: re-granted (idempotent).
	reply = c.HandleRequestVote(RequestVoteArgs{Term: 1, CandidateID: "n1"})
	assert.True(t, reply.VoteGranted)

	// Higher term resets the vote.
	reply = c.HandleRequestVote(RequestVoteArgs{Term: 2, CandidateID: "n2"})
	assert.True(t, reply.VoteGranted)
	assert.Equal(t, uint64(2), reply.Term)
}

func TestHandleRequestVoteRejectsStaleTerm(t *testing.T) {
	c := NewSimpleCoordinator("n3", nil, 50*time.Millisecond, grantingTransport{})
	c.HandleRequestVote(RequestVoteArgs{Term: 5, CandidateID: "n1"})

	reply := c.HandleRequestVote(RequestVoteArgs{Term: 3, CandidateID: "n2"})
	assert.False(t, reply.VoteGranted)
	assert.Equal(t, uint64(5), reply.Term)
}

func TestHandleRequestVoteRejectsOutOfDateLog(t *testing.T) {
	c := NewSimpleCoordinator("n3", nil, 50*time.Millisecond, grantingTransport{})
	c.log = []LogEntry{{Term: 2, Index: 1}, {Term: 2, Index: 2}}
	c.term = 2

	// Candidate's log ends at an older term.
	reply := c.HandleRequestVote(RequestVoteArgs{Term: 3, CandidateID: "n1", LastLogIndex: 5, LastLogTerm: 1})
	assert.False(t, reply.VoteGranted)

	// Same last term but shorter log.
	reply = c.HandleRequestVote(RequestVoteArgs{Term: 4, CandidateID: "n1", LastLogIndex: 1, LastLogTerm: 2})
	assert.False(t, reply.VoteGranted)

	// At least as up to date: granted.
	reply = c.HandleRequestVote(RequestVoteArgs{Term: 5, CandidateID: "n1", LastLogIndex: 2, LastLogTerm: 2})
	assert.True(t, reply.VoteGranted)
}

func TestHandleAppendEntriesAdoptsLeaderAndTerm(t *testing.T) {
	c := NewSimpleCoordinator("n2", nil, 50*time.Millisecond, grantingTransport{})

	reply := c.HandleAppendEntries(AppendEntriesArgs{Term: 3, LeaderID: "n1"})
	assert.True(t, reply.Success)
	assert.Equal(t, "n1", c.LeaderID())
	assert.False(t, c.IsLeader())
}

func TestHandleAppendEntriesRejectsStaleTerm(t *testing.T) {
	c := NewSimpleCoordinator("n2", nil, 50*time.Millisecond, grantingTransport{})
	c.HandleAppendEntries(AppendEntriesArgs{Term: 5, LeaderID: "n1"})

	reply := c.HandleAppendEntries(AppendEntriesArgs{Term: 2, LeaderID: "n9"})
	assert.False(t, reply.Success)
	assert.Equal(t, uint64(5), reply.Term)
	assert.Equal(t, "n1", c.LeaderID())
}

func TestHandleAppendEntriesRejectsInconsistentLog(t *testing.T) {
	c := NewSimpleCoordinator("n2", nil, 50*time.Millisecond, grantingTransport{})

	// Leader claims a prior entry this follower never received.
	reply := c.HandleAppendEntries(AppendEntriesArgs{Term: 1, LeaderID: "n1", PrevLogIndex: 3, PrevLogTerm: 1})
	assert.False(t, reply.Success)
}

func TestHandleAppendEntriesAppliesEntries(t *testing.T) {
	c := NewSimpleCoordinator("n2", nil, 50*time.Millisecond, grantingTransport{})

	var mu sync.Mutex
	var applied []string
	c.OnApply(func(cmd Command) {
		mu.Lock()
		applied = append(applied, cmd.Op)
		mu.Unlock()
	})

	entries := []LogEntry{
		{Term: 1, Index: 1, Command: Command{Op: OpSetLeader, Data: json.RawMessage(`"n1"`)}},
		{Term: 1, Index: 2, Command: Command{Op: OpRegisterNode, Data: json.RawMessage(`{}`)}},
	}
	reply := c.HandleAppendEntries(AppendEntriesArgs{Term: 1, LeaderID: "n1", Entries: entries, LeaderCommit: 2})
	require.True(t, reply.Success)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{OpSetLeader, OpRegisterNode}, applied)
}

func TestProposeRefusedOnFollower(t *testing.T) {
	c := NewSimpleCoordinator("n2", nil, 50*time.Millisecond, grantingTransport{})
	err := c.Propose(OpSetLeader, "n2")
	assert.Error(t, err)
}

func TestProposeAppliesOnLeader(t *testing.T) {
	c := NewSimpleCoordinator("n1", nil, 50*time.Millisecond, grantingTransport{})
	defer c.Stop()
	c.runElection() // sole node: wins immediately

	var mu sync.Mutex
	var applied []string
	c.OnApply(func(cmd Command) {
		mu.Lock()
		applied = append(applied, cmd.Op)
		mu.Unlock()
	})

	require.NoError(t, c.Propose(OpSetLeader, "n1"))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{OpSetLeader}, applied)
}

func TestHandshakeWithHigherTermForcesStepDown(t *testing.T) {
	c := NewSimpleCoordinator("n1", nil, 50*time.Millisecond, grantingTransport{})
	defer c.Stop()
	c.runElection()
	require.True(t, c.IsLeader())

	c.HandleHandshake(HandshakeArgs{NodeID: "n2", Term: 99})
	assert.False(t, c.IsLeader())
}
