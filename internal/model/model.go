// Package model holds the data shapes shared across the pipeline:
// documents, batches, the stage handoff value, and the structured
// record an LLM extraction produces.
package model

import "time"

// DocumentState is a node in the document status DAG:
// Pending -> Stage1Running -> Queued -> Stage2Running -> {Succeeded, Failed, Cancelled}.
type DocumentState string

const (
	DocPending       DocumentState = "Pending"
	DocStage1Running DocumentState = "Stage1Running"
	DocQueued        DocumentState = "Queued"
	DocStage2Running DocumentState = "Stage2Running"
	DocSucceeded     DocumentState = "Succeeded"
	DocFailed        DocumentState = "Failed"
	DocCancelled     DocumentState = "Cancelled"
)

// docTransitions enumerates the only legal edges in the document DAG.
// A document may be cancelled from Pending (drained, unclaimed at
// Stop), Stage1Running, Queued (blocked on a full channel send), or
// Stage2Running — any suspension point a worker can be sitting at when
// the cancellation signal is observed (§5).
var docTransitions = map[DocumentState][]DocumentState{
	DocPending:       {DocStage1Running, DocCancelled},
	DocStage1Running: {DocQueued, DocFailed, DocCancelled},
	DocQueued:        {DocStage2Running, DocCancelled},
	DocStage2Running: {DocSucceeded, DocFailed, DocCancelled},
}

// CanTransition reports whether from->to is a legal edge in the document
// status DAG. Any other transition is a programming error per §3.
func CanTransition(from, to DocumentState) bool {
	for _, s := range docTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DocError is set on a Document iff State is Failed or Cancelled.
type DocError struct {
	Kind       string
	Diagnostic string
}

// Document is a unit of work moving through the pipeline.
type Document struct {
	DocumentID string
	BatchID    string
	SourcePath string
	State      DocumentState
	Attempt    int
	Error      *DocError
	Extracted  *StructuredRecord
}

// BatchStatus is a node in the batch status DAG:
// Pending -> Running -> {Completed, Cancelled}.
type BatchStatus string

const (
	BatchPending   BatchStatus = "Pending"
	BatchRunning   BatchStatus = "Running"
	BatchCompleted BatchStatus = "Completed"
	BatchCancelled BatchStatus = "Cancelled"
)

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchPending: {BatchRunning},
	BatchRunning: {BatchCompleted, BatchCancelled},
}

// CanTransitionBatch reports whether from->to is a legal edge in the
// batch status DAG.
func CanTransitionBatch(from, to BatchStatus) bool {
	for _, s := range batchTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// BatchCounts are the monotonic non-decreasing per-batch counters.
type BatchCounts struct {
	Total     int
	Succeeded int
	Failed    int
	Cancelled int
}

// Batch is a run over a set of documents admitted together.
type Batch struct {
	BatchID             string
	BatchName           string
	CreatedAt           time.Time
	ProcessingStartedAt *time.Time
	FinishedAt          *time.Time
	Status              BatchStatus
	Counts              BatchCounts
}

// StageResult is the handoff value produced by Stage 1 and consumed by
// Stage 2 over the bounded channel.
type StageResult struct {
	DocumentID    string
	BatchID       string
	SourcePath    string
	Text          string
	OCRElapsedMs  int64
	OCRPageCount  int
}

// Property holds the one-to-one property record attached to a document.
// Monetary and area fields are kept in their original human-written
// string form; only the numeric area fields the source recorded as
// numbers are typed as float64 here.
type Property struct {
	ScheduleBArea             *float64
	ScheduleCPropertyName     *string
	ScheduleCPropertyAddress  *string
	ScheduleCPropertyArea     *float64
	SaleConsideration         *string
	StampDutyFee              *string
	RegistrationFee           *string
	GuidanceValue             *string
}

// Party is the shape shared by Buyer, Seller, and ConfirmingParty rows.
type Party struct {
	Name          string
	Gender        *string
	FatherName    *string
	DateOfBirth   *string
	AadhaarNumber *string
	PANCardNumber *string
	Address       *string
	Pincode       *string
	State         *string
	PhoneNumbers  []string
	Email         *string

	// PropertyShare is populated only for sellers.
	PropertyShare *string
}

// StructuredRecord is what StructuredExtractor.Parse returns and what
// Validator.Clean operates on and Repository.UpsertDocument persists.
type StructuredRecord struct {
	DocumentID         string
	TransactionDate    *string
	RegistrationOffice *string
	Property           Property
	Buyers             []Party
	Sellers            []Party
	ConfirmingParties  []Party

	// VisionRegistrationFee, when present, is the registration fee
	// extracted by the out-of-scope secondary vision pass. The
	// Validator cross-checks Property.RegistrationFee against it.
	VisionRegistrationFee *string
}

// Snapshot is the consistent, atomic view Stats() returns.
type Snapshot struct {
	Total       int
	Processed   int
	Succeeded   int
	Failed      int
	Cancelled   int
	OCRActive   int
	LLMActive   int
	InQueue     int
	CurrentFile string
	StartedAt   time.Time
	IsRunning   bool
}
