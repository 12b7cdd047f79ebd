package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

// AuditEvent is one structured record of a ledger mutation or failure.
// Reference is a unique id for correlating a scan or redemption across log
// lines.
type AuditEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	EventType   string    `json:"event_type"`
	Reference   string    `json:"reference"`
	UserID      int       `json:"user_id"`
	StaffUserID int       `json:"staff_user_id,omitempty"`
	Points      int       `json:"points,omitempty"`
	Status      string    `json:"status"`
	Details     any       `json:"details,omitempty"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

// NewReference returns a fresh correlation id for one scan/redemption flow.
func (a *Logger) NewReference() string {
	return uuid.NewString()
}

func (a *Logger) LogCredit(reference string, userID, staffUserID, points, newTotal int) {
	a.log(AuditEvent{
		Timestamp:   time.Now(),
		EventType:   "CREDIT",
		Reference:   reference,
		UserID:      userID,
		StaffUserID: staffUserID,
		Points:      points,
		Status:      "SUCCESS",
		Details:     map[string]int{"new_total": newTotal},
	})
}

func (a *Logger) LogDebit(reference string, userID, staffUserID, points, newTotal int, rewardName string) {
	a.log(AuditEvent{
		Timestamp:   time.Now(),
		EventType:   "DEBIT",
		Reference:   reference,
		UserID:      userID,
		StaffUserID: staffUserID,
		Points:      points,
		Status:      "SUCCESS",
		Details:     map[string]any{"new_total": newTotal, "reward": rewardName},
	})
}

func (a *Logger) LogBlocked(reference string, userID, staffUserID int, reason string) {
	a.log(AuditEvent{
		Timestamp:   time.Now(),
		EventType:   "BLOCKED",
		Reference:   reference,
		UserID:      userID,
		StaffUserID: staffUserID,
		Status:      "REJECTED",
		Details:     map[string]string{"reason": reason},
	})
}

func (a *Logger) LogError(reference string, userID int, err error) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: "ERROR",
		Reference: reference,
		UserID:    userID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
