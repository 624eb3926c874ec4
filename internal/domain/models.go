// Package domain defines the persistence models for lightning nodes,
// invoices, invoice requests, bounties, and bounty awards. These types are
// mapped with GORM and form the core data layer of the payment backend.
package domain

import (
	"time"
)

// Node represents one lightning-network peer the system trusts to issue and
// settle invoices. The reconciler keeps a per-node cursor (GlobalCheckpoint)
// pointing at the last add_index known to be fully resolved.
//
// Fields:
//   - PubKey: the node identity public key; unique.
//   - Name: operator-facing node name shown in node listings.
//   - RPCServer: host:port of the lightning daemon.
//   - GlobalCheckpoint: last node-side add_index fully resolved; only ever
//     advances (see services.Reconciler).
//   - QOSScore: operator-assigned quality score; node selection prefers the
//     highest score among enabled nodes.
//   - Enabled: disabled nodes are skipped by polling and node selection.
type Node struct {
	ID               uint      `json:"id"                gorm:"primaryKey"`
	PubKey           string    `json:"identity_pubkey"   gorm:"type:varchar(255);not null;uniqueIndex"`
	Name             string    `json:"node_name"         gorm:"type:varchar(255);not null;default:'Unknown'"`
	RPCServer        string    `json:"rpcserver"         gorm:"type:varchar(255);not null;default:'localhost:10009'"`
	GlobalCheckpoint uint64    `json:"global_checkpoint" gorm:"not null;default:0"`
	QOSScore         int       `json:"qos_score"         gorm:"not null;default:0"`
	// No default tag: with one, GORM omits a false value on insert and the
	// column default silently re-enables the node.
	Enabled bool `json:"enabled" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Node.
func (Node) TableName() string { return "nodes" }

// InvoiceRequest records the intent to create an invoice for a memo on a
// node. It exists before the node-side invoice does, which makes invoice
// creation idempotent on (node, memo): repeated create calls find the same
// request and return its invoice. A request owns zero or one Invoice.
type InvoiceRequest struct {
	ID        uint      `json:"id"      gorm:"primaryKey"`
	NodeID    uint      `json:"node_id" gorm:"not null;index;uniqueIndex:ux_invoice_requests_node_memo,priority:1"`
	Memo      string    `json:"memo"    gorm:"type:varchar(1024);not null;uniqueIndex:ux_invoice_requests_node_memo,priority:2"`
	CreatedAt time.Time `json:"created_at"`

	Node Node `json:"-" gorm:"foreignKey:NodeID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for InvoiceRequest.
func (InvoiceRequest) TableName() string { return "invoice_requests" }

// Invoice is the node-issued counterpart of an InvoiceRequest.
//
// AddIndex is the node-assigned, per-node monotonically increasing sequence
// number; it is the ordering key for settlement polling and unique within a
// node. CheckpointValue starts at CheckpointNone and moves exactly once to a
// terminal state (see checkpoint.go); once terminal it never regresses.
// ActionType/ActionID record the domain action a settled invoice triggered,
// for idempotency and audit.
type Invoice struct {
	ID              uint      `json:"id"         gorm:"primaryKey"`
	RequestID       uint      `json:"request_id" gorm:"not null;uniqueIndex"`
	NodeID          uint      `json:"node_id"    gorm:"not null;index;uniqueIndex:ux_invoices_node_add_index,priority:1"`
	AddIndex        uint64    `json:"add_index"  gorm:"not null;uniqueIndex:ux_invoices_node_add_index,priority:2"`
	RHash           string    `json:"r_hash"     gorm:"type:varchar(255);not null"`
	PayReq          string    `json:"pay_req"    gorm:"type:varchar(2048);not null"`
	CheckpointValue string    `json:"checkpoint_value" gorm:"type:varchar(64);not null;default:'no_checkpoint'"`
	ActionType      string    `json:"action_type,omitempty" gorm:"type:varchar(32)"`
	ActionID        int64     `json:"action_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	Request InvoiceRequest `json:"-" gorm:"foreignKey:RequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Node    Node           `json:"-" gorm:"foreignKey:NodeID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Invoice.
func (Invoice) TableName() string { return "invoices" }

// Bounty is a sat reward staked on a question post. Multiple bounties may
// stack on one question; each is summed into the payout owed to the winner.
type Bounty struct {
	ID             uint       `json:"id"      gorm:"primaryKey"`
	PostID         int64      `json:"post_id" gorm:"not null;index"`
	Amt            int64      `json:"amt"     gorm:"not null"`
	IsActive       bool       `json:"is_active" gorm:"not null;default:true"`
	IsPayed        bool       `json:"is_payed"  gorm:"not null;default:false"`
	ActivationTime time.Time  `json:"activation_time" gorm:"not null"`
	AwardTime      *time.Time `json:"award_time,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Bounty.
func (Bounty) TableName() string { return "bounties" }

// BountyAward binds a bounty to the answer currently judged to be winning.
// It is recomputed in place as better answers arrive, never appended, so a
// bounty has at most one award row at any time.
type BountyAward struct {
	ID        uint      `json:"id"        gorm:"primaryKey"`
	BountyID  uint      `json:"bounty_id" gorm:"not null;uniqueIndex"`
	PostID    int64     `json:"post_id"   gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Bounty Bounty `json:"-" gorm:"foreignKey:BountyID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for BountyAward.
func (BountyAward) TableName() string { return "bounty_awards" }
