package consensus

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/brainydb/brainy/pkg/log"
)

// SimpleRole mirrors types.RaftRole for the dev coordinator's internal
// state machine.
type SimpleRole string

const (
	SimpleFollower  SimpleRole = "follower"
	SimpleCandidate SimpleRole = "candidate"
	SimpleLeader    SimpleRole = "leader"
)

// RequestVoteArgs is the literal RequestVote message from spec.md §4.5.
type RequestVoteArgs struct {
	Term         uint64 `json:"term"`
	CandidateID  string `json:"candidateId"`
	LastLogIndex uint64 `json:"lastLogIndex"`
	LastLogTerm  uint64 `json:"lastLogTerm"`
}

// RequestVoteReply answers a RequestVoteArgs.
type RequestVoteReply struct {
	Term        uint64 `json:"term"`
	VoteGranted bool   `json:"voteGranted"`
}

// LogEntry is one entry in the simple coordinator's replicated log.
type LogEntry struct {
	Term    uint64  `json:"term"`
	Index   uint64  `json:"index"`
	Command Command `json:"command"`
}

// AppendEntriesArgs is the literal AppendEntries/heartbeat message from
// spec.md §4.5 (an empty Entries slice is a heartbeat).
type AppendEntriesArgs struct {
	Term         uint64     `json:"term"`
	LeaderID     string     `json:"leaderId"`
	PrevLogIndex uint64     `json:"prevLogIndex"`
	PrevLogTerm  uint64     `json:"prevLogTerm"`
	Entries      []LogEntry `json:"entries"`
	LeaderCommit uint64     `json:"leaderCommit"`
}

// AppendEntriesReply answers an AppendEntriesArgs.
type AppendEntriesReply struct {
	Term    uint64 `json:"term"`
	Success bool   `json:"success"`
}

// HandshakeArgs is sent once when a peer connection is established.
type HandshakeArgs struct {
	NodeID string `json:"nodeId"`
	Term   uint64 `json:"term"`
}

// Transport sends the simple coordinator's RPCs to a named peer. brainy's
// HTTP control plane implements this by POSTing the spec's {id, method,
// params, ...} envelope to the peer's /rpc endpoint.
type Transport interface {
	SendRequestVote(ctx context.Context, peer string, args RequestVoteArgs) (RequestVoteReply, error)
	SendAppendEntries(ctx context.Context, peer string, args AppendEntriesArgs) (AppendEntriesReply, error)
}

// SimpleCoordinator is the dev-mode coordinator named in spec.md §9: a
// from-scratch follower/candidate/leader state machine, suitable only for
// local/single-binary clusters. A vote goes to the first candidate of a
// term whose log is at least as up to date; candidate ids are never
// compared, so simultaneous elections are settled only by the randomized
// election timeout, not by a lowest-id-wins rule. It exists specifically
// to give the spec's own RequestVote / AppendEntries / heartbeat /
// handshake message names a concrete implementation.
type SimpleCoordinator struct {
	mu sync.Mutex

	id    string
	peers []string

	term     uint64
	votedFor string
	role     SimpleRole
	leaderID string

	log         []LogEntry
	commitIndex uint64

	electionTimeout   time.Duration
	heartbeatInterval time.Duration

	transport Transport
	onApply   func(Command)
	onElected func()

	resetElection chan struct{}
	stopCh        chan struct{}
}

// NewSimpleCoordinator builds a dev coordinator for id among peers (not
// including id itself), with electionTimeout T randomized in [T, 2T] per
// spec.md §4.5 and heartbeatInterval = T/5.
func NewSimpleCoordinator(id string, peers []string, electionTimeoutBase time.Duration, transport Transport) *SimpleCoordinator {
	return &SimpleCoordinator{
		id:                id,
		peers:             peers,
		role:              SimpleFollower,
		electionTimeout:   electionTimeoutBase,
		heartbeatInterval: electionTimeoutBase / 5,
		transport:         transport,
		resetElection:     make(chan struct{}, 1),
		stopCh:            make(chan struct{}),
	}
}

// OnApply registers a callback invoked for every committed log entry.
func (c *SimpleCoordinator) OnApply(fn func(Command)) { c.onApply = fn }

// OnElected registers a callback invoked when this node becomes leader.
func (c *SimpleCoordinator) OnElected(fn func()) { c.onElected = fn }

// Start runs the election-timeout loop in the background.
func (c *SimpleCoordinator) Start() {
	go c.electionLoop()
}

// Stop halts the coordinator's background loop.
func (c *SimpleCoordinator) Stop() { close(c.stopCh) }

// IsLeader reports whether this node currently believes it is leader.
func (c *SimpleCoordinator) IsLeader() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role == SimpleLeader
}

// LeaderID returns the id of the node this coordinator currently follows.
func (c *SimpleCoordinator) LeaderID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leaderID
}

func (c *SimpleCoordinator) randomizedTimeout() time.Duration {
	jitter := time.Duration(rand.Int63n(int64(c.electionTimeout)))
	return c.electionTimeout + jitter
}

func (c *SimpleCoordinator) electionLoop() {
	timer := time.NewTimer(c.randomizedTimeout())
	defer timer.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-c.resetElection:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(c.randomizedTimeout())
		case <-timer.C:
			c.runElection()
			timer.Reset(c.randomizedTimeout())
		}
	}
}

// runElection increments the term, votes for self, and requests votes
// from every known peer; a majority (including self) wins.
func (c *SimpleCoordinator) runElection() {
	c.mu.Lock()
	c.term++
	c.role = SimpleCandidate
	c.votedFor = c.id
	term := c.term
	lastIdx, lastTerm := c.lastLogLocked()
	c.mu.Unlock()

	log.Info("consensus(simple): starting election")

	args := RequestVoteArgs{Term: term, CandidateID: c.id, LastLogIndex: lastIdx, LastLogTerm: lastTerm}
	votes := 1 // vote for self
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, peer := range c.peers {
		wg.Add(1)
		go func(peer string) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), c.electionTimeout)
			defer cancel()
			reply, err := c.transport.SendRequestVote(ctx, peer, args)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if reply.Term > term {
				c.mu.Lock()
				c.stepDownLocked(reply.Term)
				c.mu.Unlock()
				return
			}
			if reply.VoteGranted {
				votes++
			}
		}(peer)
	}
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.term != term || c.role != SimpleCandidate {
		return // a higher term arrived or we already stepped down
	}
	majority := (len(c.peers)+1)/2 + 1
	if votes >= majority {
		c.role = SimpleLeader
		c.leaderID = c.id
		log.Info("consensus(simple): elected leader")
		if c.onElected != nil {
			go c.onElected()
		}
		go c.heartbeatLoop(term)
	}
}

func (c *SimpleCoordinator) heartbeatLoop(term uint64) {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.term != term || c.role != SimpleLeader {
				c.mu.Unlock()
				return
			}
			commit := c.commitIndex
			c.mu.Unlock()

			for _, peer := range c.peers {
				go func(peer string) {
					ctx, cancel := context.WithTimeout(context.Background(), c.heartbeatInterval)
					defer cancel()
					args := AppendEntriesArgs{Term: term, LeaderID: c.id, LeaderCommit: commit}
					reply, err := c.transport.SendAppendEntries(ctx, peer, args)
					if err != nil {
						return
					}
					if reply.Term > term {
						c.mu.Lock()
						c.stepDownLocked(reply.Term)
						c.mu.Unlock()
					}
				}(peer)
			}
		}
	}
}

// Propose marshals data and appends it as a Command under op, matching
// RaftNode's signature so callers (e.g. pkg/migration) can depend on
// either coordinator through the same narrow interface.
func (c *SimpleCoordinator) Propose(op string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.proposeCommand(Command{Op: op, Data: payload})
}

func (c *SimpleCoordinator) proposeCommand(cmd Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role != SimpleLeader {
		return errNotLeaderSimple
	}
	idx, _ := c.lastLogLocked()
	entry := LogEntry{Term: c.term, Index: idx + 1, Command: cmd}
	c.log = append(c.log, entry)
	c.commitIndex = entry.Index
	if c.onApply != nil {
		c.onApply(cmd)
	}
	return nil
}

// HandleRequestVote implements the RequestVote RPC handler: grants the
// vote iff the candidate's term is current or newer, this node hasn't
// already voted this term for someone else, and the candidate's log is at
// least as up to date.
func (c *SimpleCoordinator) HandleRequestVote(args RequestVoteArgs) RequestVoteReply {
	c.mu.Lock()
	defer c.mu.Unlock()

	if args.Term < c.term {
		return RequestVoteReply{Term: c.term, VoteGranted: false}
	}
	if args.Term > c.term {
		c.stepDownLocked(args.Term)
	}

	lastIdx, lastTerm := c.lastLogLocked()
	logOK := args.LastLogTerm > lastTerm || (args.LastLogTerm == lastTerm && args.LastLogIndex >= lastIdx)

	grant := logOK && (c.votedFor == "" || c.votedFor == args.CandidateID)
	if grant {
		c.votedFor = args.CandidateID
		c.resetTimerAsync()
	}
	return RequestVoteReply{Term: c.term, VoteGranted: grant}
}

// HandleAppendEntries implements the AppendEntries/heartbeat RPC handler.
func (c *SimpleCoordinator) HandleAppendEntries(args AppendEntriesArgs) AppendEntriesReply {
	c.mu.Lock()
	defer c.mu.Unlock()

	if args.Term < c.term {
		return AppendEntriesReply{Term: c.term, Success: false}
	}
	if args.Term > c.term || c.role != SimpleFollower {
		c.stepDownLocked(args.Term)
	}
	c.leaderID = args.LeaderID
	c.resetTimerAsync()

	if args.PrevLogIndex > 0 {
		if args.PrevLogIndex > uint64(len(c.log)) || c.log[args.PrevLogIndex-1].Term != args.PrevLogTerm {
			return AppendEntriesReply{Term: c.term, Success: false}
		}
	}
	for _, e := range args.Entries {
		if e.Index <= uint64(len(c.log)) {
			c.log[e.Index-1] = e
		} else {
			c.log = append(c.log, e)
		}
		if c.onApply != nil {
			c.onApply(e.Command)
		}
	}
	if args.LeaderCommit > c.commitIndex {
		c.commitIndex = args.LeaderCommit
	}
	return AppendEntriesReply{Term: c.term, Success: true}
}

// HandleHandshake records a newly discovered peer's term, stepping down
// if it is ahead of ours; it does not change membership — peer lists are
// managed by the discovery layer.
func (c *SimpleCoordinator) HandleHandshake(args HandshakeArgs) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if args.Term > c.term {
		c.stepDownLocked(args.Term)
	}
}

func (c *SimpleCoordinator) resetTimerAsync() {
	select {
	case c.resetElection <- struct{}{}:
	default:
	}
}

func (c *SimpleCoordinator) stepDownLocked(term uint64) {
	c.term = term
	c.role = SimpleFollower
	c.votedFor = ""
}

func (c *SimpleCoordinator) lastLogLocked() (index, term uint64) {
	if len(c.log) == 0 {
		return 0, 0
	}
	last := c.log[len(c.log)-1]
	return last.Index, last.Term
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

const errNotLeaderSimple = simpleError("consensus(simple): not leader")
