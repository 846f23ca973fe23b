package protocol

// Subtask is a unit of work inside a task posting.
type Subtask struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Task is a work posting from a requestor. Referenced by every subsequent
// message through its ID; the posting itself is never mutated, only
// superseded by later messages carrying the same taskId.
type Task struct {
	Type         Type      `json:"type"`
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Budget       string    `json:"budget,omitempty"`
	Subtasks     []Subtask `json:"subtasks"`
	Requirements []string  `json:"requirements,omitempty"`
}

// TaskParams are the caller-supplied fields for NewTask.
type TaskParams struct {
	ID           string
	Title        string
	Description  string
	Budget       string
	Subtasks     []Subtask
	Requirements []string
}

// NewTask builds a task posting. A nil subtask list becomes an empty one so
// the message always carries a well-formed array.
func NewTask(p TaskParams) *Task {
	subtasks := p.Subtasks
	if subtasks == nil {
		subtasks = []Subtask{}
	}
	return &Task{
		Type:         TypeTask,
		ID:           p.ID,
		Title:        p.Title,
		Description:  p.Description,
		Budget:       p.Budget,
		Subtasks:     subtasks,
		Requirements: p.Requirements,
	}
}

func (m *Task) MessageType() Type { return TypeTask }

func (m *Task) Valid() bool {
	return m.Type == TypeTask &&
		validID(m.ID) &&
		m.Title != "" && validBounded(m.Title, MaxTitle) &&
		validBounded(m.Description, MaxDescription) &&
		m.Subtasks != nil
}

// Claim is a worker taking a subtask.
type Claim struct {
	Type      Type   `json:"type"`
	TaskID    string `json:"taskId"`
	SubtaskID string `json:"subtaskId"`
	Worker    string `json:"worker"`
}

func NewClaim(taskID, subtaskID, worker string) *Claim {
	return &Claim{Type: TypeClaim, TaskID: taskID, SubtaskID: subtaskID, Worker: worker}
}

func (m *Claim) MessageType() Type { return TypeClaim }

func (m *Claim) Valid() bool {
	return m.Type == TypeClaim && validID(m.TaskID) && validID(m.SubtaskID) && m.Worker != ""
}

// Result is a worker reporting completed work.
type Result struct {
	Type      Type   `json:"type"`
	TaskID    string `json:"taskId"`
	SubtaskID string `json:"subtaskId"`
	Worker    string `json:"worker"`
	Result    string `json:"result"`
}

func NewResult(taskID, subtaskID, worker, result string) *Result {
	return &Result{Type: TypeResult, TaskID: taskID, SubtaskID: subtaskID, Worker: worker, Result: result}
}

func (m *Result) MessageType() Type { return TypeResult }

func (m *Result) Valid() bool {
	return m.Type == TypeResult && validID(m.TaskID) && validID(m.SubtaskID) &&
		m.Worker != "" && m.Result != "" && validBounded(m.Result, MaxResult)
}

// Payment reports an on-chain payment, identified by its transaction hash.
type Payment struct {
	Type           Type   `json:"type"`
	TaskID         string `json:"taskId"`
	SubtaskID      string `json:"subtaskId,omitempty"`
	Worker         string `json:"worker"`
	TxHash         string `json:"txHash"`
	Amount         string `json:"amount,omitempty"`
	EscrowContract string `json:"escrowContract,omitempty"`
}

// PaymentParams are the caller-supplied fields for NewPayment.
type PaymentParams struct {
	TaskID         string
	SubtaskID      string
	Worker         string
	TxHash         string
	Amount         string
	EscrowContract string
}

func NewPayment(p PaymentParams) *Payment {
	return &Payment{
		Type:           TypePayment,
		TaskID:         p.TaskID,
		SubtaskID:      p.SubtaskID,
		Worker:         p.Worker,
		TxHash:         p.TxHash,
		Amount:         p.Amount,
		EscrowContract: p.EscrowContract,
	}
}

func (m *Payment) MessageType() Type { return TypePayment }

func (m *Payment) Valid() bool {
	return m.Type == TypePayment && validID(m.TaskID) && m.Worker != "" && m.TxHash != ""
}

// Ack acknowledges receipt of an earlier message for a task. Best-effort:
// the protocol makes no retransmission promises either way.
type Ack struct {
	Type   Type   `json:"type"`
	TaskID string `json:"taskId"`
	Of     Type   `json:"of,omitempty"` // type tag of the acknowledged message
}

func NewAck(taskID string, of Type) *Ack {
	return &Ack{Type: TypeAck, TaskID: taskID, Of: of}
}

func (m *Ack) MessageType() Type { return TypeAck }

func (m *Ack) Valid() bool {
	return m.Type == TypeAck && validID(m.TaskID)
}

// Listing advertises a task on the open market.
type Listing struct {
	Type         Type     `json:"type"`
	TaskID       string   `json:"taskId"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Budget       string   `json:"budget,omitempty"`
	SkillsNeeded []string `json:"skills_needed"`
	Requestor    string   `json:"requestor"`
	Expires      int64    `json:"expires,omitempty"`
}

// ListingParams are the caller-supplied fields for NewListing.
type ListingParams struct {
	TaskID       string
	Title        string
	Description  string
	Budget       string
	SkillsNeeded []string
	Requestor    string
	Expires      int64
}

func NewListing(p ListingParams) *Listing {
	skills := p.SkillsNeeded
	if skills == nil {
		skills = []string{}
	}
	return &Listing{
		Type:         TypeListing,
		TaskID:       p.TaskID,
		Title:        p.Title,
		Description:  p.Description,
		Budget:       p.Budget,
		SkillsNeeded: skills,
		Requestor:    p.Requestor,
		Expires:      p.Expires,
	}
}

func (m *Listing) MessageType() Type { return TypeListing }

func (m *Listing) Valid() bool {
	if m.Type != TypeListing || !validID(m.TaskID) ||
		m.Title == "" || !validBounded(m.Title, MaxTitle) ||
		!validBounded(m.Description, MaxDescription) ||
		m.Requestor == "" {
		return false
	}
	// Skills are optional on a listing, but must be well formed when present.
	return len(m.SkillsNeeded) == 0 || ValidSkills(m.SkillsNeeded)
}

// Profile announces an agent's capabilities and rates for discovery.
type Profile struct {
	Type         Type              `json:"type"`
	Agent        string            `json:"agent"`
	Skills       []string          `json:"skills"`
	Rates        map[string]string `json:"rates,omitempty"`
	Availability string            `json:"availability,omitempty"`
}

// ProfileParams are the caller-supplied fields for NewProfile.
type ProfileParams struct {
	Agent        string
	Skills       []string
	Rates        map[string]string
	Availability string
}

func NewProfile(p ProfileParams) *Profile {
	skills := p.Skills
	if skills == nil {
		skills = []string{}
	}
	availability := p.Availability
	if availability == "" {
		availability = "active"
	}
	return &Profile{Type: TypeProfile, Agent: p.Agent, Skills: skills, Rates: p.Rates, Availability: availability}
}

func (m *Profile) MessageType() Type { return TypeProfile }

func (m *Profile) Valid() bool {
	if m.Type != TypeProfile || m.Agent == "" || m.Skills == nil {
		return false
	}
	return len(m.Skills) == 0 || ValidSkills(m.Skills)
}

// Bid is a worker's price offer for a listed task.
type Bid struct {
	Type          Type   `json:"type"`
	TaskID        string `json:"taskId"`
	Worker        string `json:"worker"`
	Price         string `json:"price"`
	EstimatedTime string `json:"estimatedTime,omitempty"`
}

func NewBid(taskID, worker, price, estimatedTime string) *Bid {
	return &Bid{Type: TypeBid, TaskID: taskID, Worker: worker, Price: price, EstimatedTime: estimatedTime}
}

func (m *Bid) MessageType() Type { return TypeBid }

func (m *Bid) Valid() bool {
	return m.Type == TypeBid && validID(m.TaskID) && m.Worker != "" && validAmount(m.Price)
}

// BidCounter is a requestor's counter-offer to a bid. Counter-offers are
// first-class so a negotiation is a finite sequence of moves rather than a
// bare accept/reject.
type BidCounter struct {
	Type         Type   `json:"type"`
	TaskID       string `json:"taskId"`
	Worker       string `json:"worker"`
	CounterPrice string `json:"counterPrice"`
	Note         string `json:"message,omitempty"`
}

func NewBidCounter(taskID, worker, counterPrice, note string) *BidCounter {
	return &BidCounter{Type: TypeBidCounter, TaskID: taskID, Worker: worker, CounterPrice: counterPrice, Note: note}
}

func (m *BidCounter) MessageType() Type { return TypeBidCounter }

func (m *BidCounter) Valid() bool {
	return m.Type == TypeBidCounter && validID(m.TaskID) && m.Worker != "" && validAmount(m.CounterPrice)
}

// BidWithdraw retracts an open bid.
type BidWithdraw struct {
	Type   Type   `json:"type"`
	TaskID string `json:"taskId"`
	Worker string `json:"worker"`
}

func NewBidWithdraw(taskID, worker string) *BidWithdraw {
	return &BidWithdraw{Type: TypeBidWithdraw, TaskID: taskID, Worker: worker}
}

func (m *BidWithdraw) MessageType() Type { return TypeBidWithdraw }

func (m *BidWithdraw) Valid() bool {
	return m.Type == TypeBidWithdraw && validID(m.TaskID) && m.Worker != ""
}

// Progress is an interim status note from a worker.
type Progress struct {
	Type      Type   `json:"type"`
	TaskID    string `json:"taskId"`
	SubtaskID string `json:"subtaskId,omitempty"`
	Worker    string `json:"worker"`
	Note      string `json:"note,omitempty"`
}

func NewProgress(taskID, subtaskID, worker, note string) *Progress {
	return &Progress{Type: TypeProgress, TaskID: taskID, SubtaskID: subtaskID, Worker: worker, Note: note}
}

func (m *Progress) MessageType() Type { return TypeProgress }

func (m *Progress) Valid() bool {
	return m.Type == TypeProgress && validID(m.TaskID) && m.Worker != "" &&
		validBounded(m.Note, MaxDescription)
}

// Cancel withdraws a task posting.
type Cancel struct {
	Type   Type   `json:"type"`
	TaskID string `json:"taskId"`
	Reason string `json:"reason,omitempty"`
}

func NewCancel(taskID, reason string) *Cancel {
	return &Cancel{Type: TypeCancel, TaskID: taskID, Reason: reason}
}

func (m *Cancel) MessageType() Type { return TypeCancel }

func (m *Cancel) Valid() bool {
	return m.Type == TypeCancel && validID(m.TaskID) && validBounded(m.Reason, MaxDescription)
}

// EscrowCreated mirrors the on-chain EscrowCreated event so counterparties
// hear about it before chain confirmation propagates. The chain remains the
// source of truth; this is a low-latency courtesy copy.
type EscrowCreated struct {
	Type     Type   `json:"type"`
	TaskID   string `json:"taskId"`
	Worker   string `json:"worker"`
	Amount   string `json:"amount,omitempty"`
	Deadline int64  `json:"deadline,omitempty"`
	TxHash   string `json:"txHash"`
}

// EscrowCreatedParams are the caller-supplied fields for NewEscrowCreated.
type EscrowCreatedParams struct {
	TaskID   string
	Worker   string
	Amount   string
	Deadline int64
	TxHash   string
}

func NewEscrowCreated(p EscrowCreatedParams) *EscrowCreated {
	return &EscrowCreated{
		Type:     TypeEscrowCreated,
		TaskID:   p.TaskID,
		Worker:   p.Worker,
		Amount:   p.Amount,
		Deadline: p.Deadline,
		TxHash:   p.TxHash,
	}
}

func (m *EscrowCreated) MessageType() Type { return TypeEscrowCreated }

func (m *EscrowCreated) Valid() bool {
	return m.Type == TypeEscrowCreated && validID(m.TaskID) && m.Worker != "" && m.TxHash != ""
}

// EscrowReleased mirrors the on-chain EscrowReleased event.
type EscrowReleased struct {
	Type   Type   `json:"type"`
	TaskID string `json:"taskId"`
	Worker string `json:"worker,omitempty"`
	Amount string `json:"amount,omitempty"`
	TxHash string `json:"txHash"`
}

func NewEscrowReleased(taskID, worker, amount, txHash string) *EscrowReleased {
	return &EscrowReleased{Type: TypeEscrowReleased, TaskID: taskID, Worker: worker, Amount: amount, TxHash: txHash}
}

func (m *EscrowReleased) MessageType() Type { return TypeEscrowReleased }

func (m *EscrowReleased) Valid() bool {
	return m.Type == TypeEscrowReleased && validID(m.TaskID) && m.TxHash != ""
}

// ReputationQuery asks a peer for the trust profile of an address.
type ReputationQuery struct {
	Type           Type   `json:"type"`
	Agent          string `json:"agent"`
	EscrowContract string `json:"escrowContract,omitempty"`
}

func NewReputationQuery(agent, escrowContract string) *ReputationQuery {
	return &ReputationQuery{Type: TypeReputationQuery, Agent: agent, EscrowContract: escrowContract}
}

func (m *ReputationQuery) MessageType() Type { return TypeReputationQuery }

func (m *ReputationQuery) Valid() bool {
	return m.Type == TypeReputationQuery && m.Agent != "" && validBounded(m.Agent, MaxID)
}

// Reputation answers a ReputationQuery with the derived trust score.
type Reputation struct {
	Type       Type   `json:"type"`
	Address    string `json:"address"`
	TrustScore int    `json:"trustScore"`
}

func NewReputation(address string, trustScore int) *Reputation {
	return &Reputation{Type: TypeReputation, Address: address, TrustScore: trustScore}
}

func (m *Reputation) MessageType() Type { return TypeReputation }

func (m *Reputation) Valid() bool {
	return m.Type == TypeReputation && m.Address != "" &&
		m.TrustScore >= 0 && m.TrustScore <= 100
}

// DeliverableSubmitted mirrors the registry's DeliverableSubmitted event.
type DeliverableSubmitted struct {
	Type            Type   `json:"type"`
	TaskID          string `json:"taskId"`
	Worker          string `json:"worker"`
	DeliverableHash string `json:"deliverableHash"`
	TxHash          string `json:"txHash,omitempty"`
}

func NewDeliverableSubmitted(taskID, worker, deliverableHash, txHash string) *DeliverableSubmitted {
	return &DeliverableSubmitted{
		Type:            TypeDeliverableSubmitted,
		TaskID:          taskID,
		Worker:          worker,
		DeliverableHash: deliverableHash,
		TxHash:          txHash,
	}
}

func (m *DeliverableSubmitted) MessageType() Type { return TypeDeliverableSubmitted }

func (m *DeliverableSubmitted) Valid() bool {
	return m.Type == TypeDeliverableSubmitted && validID(m.TaskID) &&
		m.Worker != "" && m.DeliverableHash != ""
}

// VerificationResult mirrors the registry's VerificationRecorded event.
type VerificationResult struct {
	Type             Type   `json:"type"`
	TaskID           string `json:"taskId"`
	Verifier         string `json:"verifier,omitempty"`
	Passed           bool   `json:"passed"`
	VerificationHash string `json:"verificationHash"`
	TxHash           string `json:"txHash,omitempty"`
	Summary          string `json:"summary,omitempty"`
}

// VerificationResultParams are the caller-supplied fields for NewVerificationResult.
type VerificationResultParams struct {
	TaskID           string
	Verifier         string
	Passed           bool
	VerificationHash string
	TxHash           string
	Summary          string
}

func NewVerificationResult(p VerificationResultParams) *VerificationResult {
	return &VerificationResult{
		Type:             TypeVerificationResult,
		TaskID:           p.TaskID,
		Verifier:         p.Verifier,
		Passed:           p.Passed,
		VerificationHash: p.VerificationHash,
		TxHash:           p.TxHash,
		Summary:          p.Summary,
	}
}

func (m *VerificationResult) MessageType() Type { return TypeVerificationResult }

func (m *VerificationResult) Valid() bool {
	return m.Type == TypeVerificationResult && validID(m.TaskID) &&
		m.VerificationHash != "" && validBounded(m.Summary, MaxDescription)
}

// CriteriaSet mirrors the registry's CriteriaSet event.
type CriteriaSet struct {
	Type         Type   `json:"type"`
	TaskID       string `json:"taskId"`
	Requestor    string `json:"requestor,omitempty"`
	CriteriaHash string `json:"criteriaHash"`
	TxHash       string `json:"txHash,omitempty"`
}

func NewCriteriaSet(taskID, requestor, criteriaHash, txHash string) *CriteriaSet {
	return &CriteriaSet{Type: TypeCriteriaSet, TaskID: taskID, Requestor: requestor, CriteriaHash: criteriaHash, TxHash: txHash}
}

func (m *CriteriaSet) MessageType() Type { return TypeCriteriaSet }

func (m *CriteriaSet) Valid() bool {
	return m.Type == TypeCriteriaSet && validID(m.TaskID) && m.CriteriaHash != ""
}

// SubtaskDelegation announces that a worker has re-listed part of its own
// task as a new listing. The delegating worker stays the counterparty of
// record toward the original requestor; subcontracting does not reassign the
// escrow.
type SubtaskDelegation struct {
	Type               Type   `json:"type"`
	ParentTaskID       string `json:"parentTaskId"`
	SubtaskID          string `json:"subtaskId"`
	DelegatedListingID string `json:"delegatedListingId,omitempty"`
	Worker             string `json:"worker"`
}

func NewSubtaskDelegation(parentTaskID, subtaskID, delegatedListingID, worker string) *SubtaskDelegation {
	return &SubtaskDelegation{
		Type:               TypeSubtaskDelegation,
		ParentTaskID:       parentTaskID,
		SubtaskID:          subtaskID,
		DelegatedListingID: delegatedListingID,
		Worker:             worker,
	}
}

func (m *SubtaskDelegation) MessageType() Type { return TypeSubtaskDelegation }

func (m *SubtaskDelegation) Valid() bool {
	return m.Type == TypeSubtaskDelegation && validID(m.ParentTaskID) &&
		validID(m.SubtaskID) && m.Worker != ""
}
