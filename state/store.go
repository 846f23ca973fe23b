// Package state persists swarm activity for the dashboard: agents, tasks,
// listings, escrows, reputation snapshots, and a rolling activity feed.
// Every mutation is a single SQLite transaction, so concurrent agents on the
// same host never corrupt the log.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// maxActivity bounds the activity feed; older events are trimmed on write.
const maxActivity = 50

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	address          TEXT PRIMARY KEY,
	roles            TEXT NOT NULL DEFAULT '[]',
	earned           REAL NOT NULL DEFAULT 0,
	spent            REAL NOT NULL DEFAULT 0,
	tasks_posted     INTEGER NOT NULL DEFAULT 0,
	tasks_claimed    INTEGER NOT NULL DEFAULT 0,
	tasks_completed  INTEGER NOT NULL DEFAULT 0,
	first_seen       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	budget      TEXT NOT NULL DEFAULT '',
	subtasks    INTEGER NOT NULL DEFAULT 0,
	requestor   TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'open',
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS listings (
	task_id     TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	budget      TEXT NOT NULL DEFAULT '',
	skills      TEXT NOT NULL DEFAULT '[]',
	requestor   TEXT NOT NULL,
	bids        INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'open',
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS escrows (
	task_id          TEXT PRIMARY KEY,
	requestor        TEXT NOT NULL,
	worker           TEXT NOT NULL,
	amount           TEXT NOT NULL,
	deadline         INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'active',
	tx_hash          TEXT NOT NULL DEFAULT '',
	release_tx_hash  TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reputation (
	address      TEXT PRIMARY KEY,
	trust_score  INTEGER NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS activity (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	type     TEXT NOT NULL,
	agent    TEXT NOT NULL,
	task_id  TEXT NOT NULL DEFAULT '',
	detail   TEXT NOT NULL DEFAULT '',
	amount   TEXT NOT NULL DEFAULT '',
	tx_hash  TEXT NOT NULL DEFAULT '',
	at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS stats (
	name   TEXT PRIMARY KEY,
	value  REAL NOT NULL DEFAULT 0
);
`

// Store is a SQLite-backed activity log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the activity database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Agent is one participant's accumulated footprint.
type Agent struct {
	Address        string    `json:"address"`
	Roles          []string  `json:"roles"`
	Earned         float64   `json:"earned"`
	Spent          float64   `json:"spent"`
	TasksPosted    int       `json:"tasksPosted"`
	TasksClaimed   int       `json:"tasksClaimed"`
	TasksCompleted int       `json:"tasksCompleted"`
	FirstSeen      time.Time `json:"firstSeen"`
}

// Task is a posted task as seen by the dashboard.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Budget    string    `json:"budget"`
	Subtasks  int       `json:"subtasks"`
	Requestor string    `json:"requestor"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Listing is an open-market task listing.
type Listing struct {
	TaskID      string    `json:"taskId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Budget      string    `json:"budget"`
	Skills      []string  `json:"skillsNeeded"`
	Requestor   string    `json:"requestor"`
	Bids        int       `json:"bids"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// EscrowRecord mirrors one on-chain escrow for display.
type EscrowRecord struct {
	TaskID        string    `json:"taskId"`
	Requestor     string    `json:"requestor"`
	Worker        string    `json:"worker"`
	Amount        string    `json:"amount"`
	Deadline      int64     `json:"deadline"`
	Status        string    `json:"status"`
	TxHash        string    `json:"txHash"`
	ReleaseTxHash string    `json:"releaseTxHash,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ReputationEntry is the latest trust score seen for an address.
type ReputationEntry struct {
	Address    string    `json:"address"`
	TrustScore int       `json:"trustScore"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Event is one line in the activity feed.
type Event struct {
	Type   string    `json:"type"`
	Agent  string    `json:"agent"`
	TaskID string    `json:"taskId,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Amount string    `json:"amount,omitempty"`
	TxHash string    `json:"txHash,omitempty"`
	At     time.Time `json:"at"`
}

// Stats holds the swarm-wide counters.
type Stats struct {
	TotalTasks    int     `json:"totalTasks"`
	TotalPaid     float64 `json:"totalPaid"`
	TotalClaims   int     `json:"totalClaims"`
	TotalResults  int     `json:"totalResults"`
	TotalListings int     `json:"totalListings"`
	TotalBids     int     `json:"totalBids"`
	TotalEscrows  int     `json:"totalEscrows"`
	TotalDisputes int     `json:"totalDisputes"`
}

// Snapshot is the full dashboard state at a point in time.
type Snapshot struct {
	Agents     map[string]Agent  `json:"agents"`
	Tasks      []Task            `json:"tasks"`
	Listings   []Listing         `json:"listings"`
	Escrows    []EscrowRecord    `json:"escrows"`
	Reputation []ReputationEntry `json:"reputation"`
	Activity   []Event           `json:"activity"`
	Stats      Stats             `json:"stats"`
}

// RegisterAgent records an address under role, adding the role to an
// existing agent if it is new.
func (s *Store) RegisterAgent(ctx context.Context, address, role string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return registerAgent(tx, address, role)
	})
}

func registerAgent(tx *sql.Tx, address, role string) error {
	var rolesJSON string
	err := tx.QueryRow("SELECT roles FROM agents WHERE address = ?", address).Scan(&rolesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		roles, _ := json.Marshal([]string{role})
		_, err := tx.Exec(
			"INSERT INTO agents (address, roles, first_seen) VALUES (?, ?, ?)",
			address, string(roles), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("insert agent: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read agent: %w", err)
	}
	var roles []string
	if err := json.Unmarshal([]byte(rolesJSON), &roles); err != nil {
		roles = nil
	}
	if slices.Contains(roles, role) {
		return nil
	}
	roles = append(roles, role)
	updated, _ := json.Marshal(roles)
	if _, err := tx.Exec("UPDATE agents SET roles = ? WHERE address = ?", string(updated), address); err != nil {
		return fmt.Errorf("update agent roles: %w", err)
	}
	return nil
}

// LogTask records a newly posted task and credits the requestor.
func (s *Store) LogTask(ctx context.Context, t Task) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := registerAgent(tx, t.Requestor, "requestor"); err != nil {
			return err
		}
		_, err := tx.Exec(
			"INSERT OR REPLACE INTO tasks (id, title, budget, subtasks, requestor, status, created_at) VALUES (?, ?, ?, ?, ?, 'open', ?)",
			t.ID, truncate(t.Title, 200), t.Budget, t.Subtasks, t.Requestor, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		if err := bump(tx, "totalTasks", 1); err != nil {
			return err
		}
		_, err = tx.Exec(
			"UPDATE agents SET tasks_posted = tasks_posted + 1, spent = spent + ? WHERE address = ?",
			parseAmount(t.Budget), t.Requestor)
		if err != nil {
			return fmt.Errorf("credit requestor: %w", err)
		}
		return appendEvent(tx, Event{
			Type:   "task_posted",
			Agent:  t.Requestor,
			Detail: truncate(t.Title, 200),
			Amount: t.Budget,
		})
	})
}

// LogClaim records a worker claiming a task and moves it in progress.
func (s *Store) LogClaim(ctx context.Context, taskID, worker string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := registerAgent(tx, worker, "worker"); err != nil {
			return err
		}
		if err := bump(tx, "totalClaims", 1); err != nil {
			return err
		}
		if _, err := tx.Exec(
			"UPDATE agents SET tasks_claimed = tasks_claimed + 1 WHERE address = ?", worker); err != nil {
			return fmt.Errorf("credit worker claim: %w", err)
		}
		if _, err := tx.Exec(
			"UPDATE tasks SET status = 'in-progress' WHERE id = ?", taskID); err != nil {
			return fmt.Errorf("update task status: %w", err)
		}
		return appendEvent(tx, Event{Type: "subtask_claimed", Agent: worker, TaskID: taskID})
	})
}

// LogResult records a worker submitting a result.
func (s *Store) LogResult(ctx context.Context, taskID, worker string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := bump(tx, "totalResults", 1); err != nil {
			return err
		}
		if _, err := tx.Exec(
			"UPDATE agents SET tasks_completed = tasks_completed + 1 WHERE address = ?", worker); err != nil {
			return fmt.Errorf("credit worker result: %w", err)
		}
		return appendEvent(tx, Event{Type: "result_submitted", Agent: worker, TaskID: taskID})
	})
}

// LogPayment records a payment to worker and marks the task paid.
func (s *Store) LogPayment(ctx context.Context, taskID, worker, amount, txHash string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		amt := parseAmount(amount)
		if err := bump(tx, "totalPaid", amt); err != nil {
			return err
		}
		if _, err := tx.Exec(
			"UPDATE agents SET earned = earned + ? WHERE address = ?", amt, worker); err != nil {
			return fmt.Errorf("credit worker payment: %w", err)
		}
		if _, err := tx.Exec(
			"UPDATE tasks SET status = 'paid' WHERE id = ?", taskID); err != nil {
			return fmt.Errorf("update task status: %w", err)
		}
		return appendEvent(tx, Event{
			Type:   "payment_sent",
			Agent:  worker,
			TaskID: taskID,
			Amount: amount,
			TxHash: txHash,
		})
	})
}

// LogListing records an open-market listing.
func (s *Store) LogListing(ctx context.Context, l Listing) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := bump(tx, "totalListings", 1); err != nil {
			return err
		}
		skills, _ := json.Marshal(l.Skills)
		_, err := tx.Exec(
			"INSERT OR REPLACE INTO listings (task_id, title, description, budget, skills, requestor, bids, status, created_at) VALUES (?, ?, ?, ?, ?, ?, 0, 'open', ?)",
			l.TaskID, truncate(l.Title, 200), truncate(l.Description, 500), l.Budget,
			string(skills), l.Requestor, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("insert listing: %w", err)
		}
		return appendEvent(tx, Event{
			Type:   "listing_posted",
			Agent:  l.Requestor,
			Detail: truncate(l.Title, 200),
			Amount: l.Budget,
		})
	})
}

// LogBid counts a bid against a listing.
func (s *Store) LogBid(ctx context.Context, taskID, bidder string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := bump(tx, "totalBids", 1); err != nil {
			return err
		}
		if _, err := tx.Exec(
			"UPDATE listings SET bids = bids + 1 WHERE task_id = ?", taskID); err != nil {
			return fmt.Errorf("count bid: %w", err)
		}
		return appendEvent(tx, Event{Type: "bid_placed", Agent: bidder, TaskID: taskID})
	})
}

// LogEscrow records a newly funded escrow.
func (s *Store) LogEscrow(ctx context.Context, e EscrowRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := bump(tx, "totalEscrows", 1); err != nil {
			return err
		}
		status := e.Status
		if status == "" {
			status = "active"
		}
		_, err := tx.Exec(
			"INSERT OR REPLACE INTO escrows (task_id, requestor, worker, amount, deadline, status, tx_hash, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			e.TaskID, e.Requestor, e.Worker, e.Amount, e.Deadline, status, e.TxHash, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("insert escrow: %w", err)
		}
		return appendEvent(tx, Event{
			Type:   "escrow_created",
			Agent:  e.Requestor,
			TaskID: e.TaskID,
			Amount: e.Amount,
			TxHash: e.TxHash,
		})
	})
}

// UpdateEscrow moves a logged escrow to status and records the settling
// transaction. Unknown task IDs are ignored. A disputed status counts
// toward the dispute total.
func (s *Store) UpdateEscrow(ctx context.Context, taskID, status, txHash string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var worker, amount string
		err := tx.QueryRow("SELECT worker, amount FROM escrows WHERE task_id = ?", taskID).
			Scan(&worker, &amount)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read escrow: %w", err)
		}
		if _, err := tx.Exec(
			"UPDATE escrows SET status = ?, release_tx_hash = CASE WHEN ? = '' THEN release_tx_hash ELSE ? END WHERE task_id = ?",
			status, txHash, txHash, taskID); err != nil {
			return fmt.Errorf("update escrow: %w", err)
		}
		if status == "disputed" {
			if err := bump(tx, "totalDisputes", 1); err != nil {
				return err
			}
		}
		return appendEvent(tx, Event{
			Type:   "escrow_" + status,
			Agent:  worker,
			TaskID: taskID,
			Amount: amount,
			TxHash: txHash,
		})
	})
}

// LogReputation records the latest trust score for an address, replacing
// any previous entry.
func (s *Store) LogReputation(ctx context.Context, address string, trustScore int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO reputation (address, trust_score, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(address) DO UPDATE SET
				trust_score = excluded.trust_score,
				updated_at = excluded.updated_at`,
			address, trustScore, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("upsert reputation: %w", err)
		}
		return appendEvent(tx, Event{
			Type:   "reputation_updated",
			Agent:  address,
			Detail: strconv.Itoa(trustScore),
		})
	})
}

// Snapshot reads the full dashboard state.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Agents:     make(map[string]Agent),
		Tasks:      []Task{},
		Listings:   []Listing{},
		Escrows:    []EscrowRecord{},
		Reputation: []ReputationEntry{},
		Activity:   []Event{},
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT address, roles, earned, spent, tasks_posted, tasks_claimed, tasks_completed, first_seen FROM agents")
	if err != nil {
		return nil, fmt.Errorf("read agents: %w", err)
	}
	for rows.Next() {
		var a Agent
		var rolesJSON string
		if err := rows.Scan(&a.Address, &rolesJSON, &a.Earned, &a.Spent,
			&a.TasksPosted, &a.TasksClaimed, &a.TasksCompleted, &a.FirstSeen); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		json.Unmarshal([]byte(rolesJSON), &a.Roles)
		snap.Agents[a.Address] = a
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("read agents: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		"SELECT id, title, budget, subtasks, requestor, status, created_at FROM tasks ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Budget, &t.Subtasks, &t.Requestor, &t.Status, &t.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan task: %w", err)
		}
		snap.Tasks = append(snap.Tasks, t)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		"SELECT task_id, title, description, budget, skills, requestor, bids, status, created_at FROM listings ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("read listings: %w", err)
	}
	for rows.Next() {
		var l Listing
		var skillsJSON string
		if err := rows.Scan(&l.TaskID, &l.Title, &l.Description, &l.Budget,
			&skillsJSON, &l.Requestor, &l.Bids, &l.Status, &l.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		json.Unmarshal([]byte(skillsJSON), &l.Skills)
		snap.Listings = append(snap.Listings, l)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("read listings: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		"SELECT task_id, requestor, worker, amount, deadline, status, tx_hash, release_tx_hash, created_at FROM escrows ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("read escrows: %w", err)
	}
	for rows.Next() {
		var e EscrowRecord
		if err := rows.Scan(&e.TaskID, &e.Requestor, &e.Worker, &e.Amount,
			&e.Deadline, &e.Status, &e.TxHash, &e.ReleaseTxHash, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan escrow: %w", err)
		}
		snap.Escrows = append(snap.Escrows, e)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("read escrows: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		"SELECT address, trust_score, updated_at FROM reputation ORDER BY trust_score DESC")
	if err != nil {
		return nil, fmt.Errorf("read reputation: %w", err)
	}
	for rows.Next() {
		var r ReputationEntry
		if err := rows.Scan(&r.Address, &r.TrustScore, &r.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan reputation: %w", err)
		}
		snap.Reputation = append(snap.Reputation, r)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("read reputation: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		"SELECT type, agent, task_id, detail, amount, tx_hash, at FROM activity ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("read activity: %w", err)
	}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Type, &e.Agent, &e.TaskID, &e.Detail, &e.Amount, &e.TxHash, &e.At); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		snap.Activity = append(snap.Activity, e)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("read activity: %w", err)
	}

	stats, err := s.readStats(ctx)
	if err != nil {
		return nil, err
	}
	snap.Stats = stats
	return snap, nil
}

func (s *Store) readStats(ctx context.Context) (Stats, error) {
	var st Stats
	rows, err := s.db.QueryContext(ctx, "SELECT name, value FROM stats")
	if err != nil {
		return st, fmt.Errorf("read stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return st, fmt.Errorf("scan stat: %w", err)
		}
		switch name {
		case "totalTasks":
			st.TotalTasks = int(value)
		case "totalPaid":
			st.TotalPaid = value
		case "totalClaims":
			st.TotalClaims = int(value)
		case "totalResults":
			st.TotalResults = int(value)
		case "totalListings":
			st.TotalListings = int(value)
		case "totalBids":
			st.TotalBids = int(value)
		case "totalEscrows":
			st.TotalEscrows = int(value)
		case "totalDisputes":
			st.TotalDisputes = int(value)
		}
	}
	return st, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func appendEvent(tx *sql.Tx, e Event) error {
	_, err := tx.Exec(
		"INSERT INTO activity (type, agent, task_id, detail, amount, tx_hash, at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.Type, e.Agent, e.TaskID, e.Detail, e.Amount, e.TxHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	_, err = tx.Exec(
		"DELETE FROM activity WHERE id NOT IN (SELECT id FROM activity ORDER BY id DESC LIMIT ?)",
		maxActivity)
	if err != nil {
		return fmt.Errorf("trim activity: %w", err)
	}
	return nil
}

func bump(tx *sql.Tx, name string, delta float64) error {
	_, err := tx.Exec(`
		INSERT INTO stats (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = value + excluded.value`,
		name, delta)
	if err != nil {
		return fmt.Errorf("bump %s: %w", name, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
