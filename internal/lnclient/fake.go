package lnclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// FakeClient is the deterministic in-memory Client used in tests and mock
// deployments. It models one virtual node per rpcserver: invoices receive
// monotonically increasing add_index values, and tests drive settlement
// and cancellation explicitly through Settle and Cancel.
//
// VerifyMessage performs real compact-signature recovery (see sign.go), so
// signed flows exercise the same math as an lnd node. DecodePayReq and
// PayInvoice answer from programmable tables, which keeps amount checks
// and failure classification testable without a network.
//
// FakeClient is safe for concurrent use.
type FakeClient struct {
	mu    sync.Mutex
	nodes map[string]*fakeNode

	// DecodeAmounts maps a pay_req to its millisatoshi amount.
	DecodeAmounts map[string]int64
	// FailDecode forces DecodePayReq failures by pay_req.
	FailDecode map[string]FailureType
	// FailPay forces PayInvoice failures by pay_req.
	FailPay map[string]FailureType
	// Paid records successfully paid pay_reqs in order.
	Paid []string

	// Now supplies timestamps; defaults to time.Now.
	Now func() time.Time
}

type fakeNode struct {
	nextAddIndex uint64
	invoices     []InvoiceRecord
}

// NewFakeClient returns an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		nodes:         make(map[string]*fakeNode),
		DecodeAmounts: make(map[string]int64),
		FailDecode:    make(map[string]FailureType),
		FailPay:       make(map[string]FailureType),
		Now:           time.Now,
	}
}

func (f *FakeClient) node(rpcserver string) *fakeNode {
	n, ok := f.nodes[rpcserver]
	if !ok {
		n = &fakeNode{}
		f.nodes[rpcserver] = n
	}
	return n
}

// AddInvoice issues a deterministic invoice on the virtual node.
func (f *FakeClient) AddInvoice(_ context.Context, rpcserver, memo string, amt int64, expiry time.Duration) (AddResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.node(rpcserver)
	n.nextAddIndex++
	idx := n.nextAddIndex

	rhash := sha256.Sum256([]byte(rpcserver + memo))
	rec := InvoiceRecord{
		Memo:           memo,
		PaymentRequest: fmt.Sprintf("fakepayreq-%s-%d", rpcserver, idx),
		RHash:          hex.EncodeToString(rhash[:]),
		AddIndex:       idx,
		State:          StateOpen,
		CreationDate:   f.Now().Unix(),
		Expiry:         int64(expiry.Seconds()),
	}
	n.invoices = append(n.invoices, rec)

	return AddResult{PayReq: rec.PaymentRequest, RHash: rec.RHash, AddIndex: idx}, nil
}

// ListInvoices returns invoices with add_index strictly above indexOffset,
// matching the node's exclusive-offset paging.
func (f *FakeClient) ListInvoices(_ context.Context, rpcserver string, indexOffset uint64, max int) (ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.node(rpcserver)
	res := ListResult{FirstIndexOffset: indexOffset}
	for _, rec := range n.invoices {
		if rec.AddIndex <= indexOffset {
			continue
		}
		res.Invoices = append(res.Invoices, rec)
		res.LastIndexOffset = rec.AddIndex
		if max > 0 && len(res.Invoices) >= max {
			break
		}
	}
	return res, nil
}

// VerifyMessage recovers the signer pubkey from a compact signature
// produced by SignMessage.
func (f *FakeClient) VerifyMessage(_ context.Context, _, msg, sig string) (VerifyResult, error) {
	pubkey, ok := RecoverPubkey(msg, sig)
	if !ok {
		return VerifyResult{Valid: false}, nil
	}
	return VerifyResult{Valid: true, Pubkey: pubkey}, nil
}

// DecodePayReq answers from the DecodeAmounts table; unknown pay_reqs and
// forced failures report the configured failure type.
func (f *FakeClient) DecodePayReq(_ context.Context, _, payReq string) DecodeResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ftype, ok := f.FailDecode[payReq]; ok {
		return DecodeResult{FailureType: ftype, Stdouterr: "forced decode failure"}
	}
	msat, ok := f.DecodeAmounts[payReq]
	if !ok {
		return DecodeResult{FailureType: FailureExit, Stdouterr: "unknown pay_req"}
	}
	return DecodeResult{Success: true, NumSatoshis: msat / 1000, NumMsat: msat}
}

// PayInvoice succeeds unless a failure is forced, recording the payment.
func (f *FakeClient) PayInvoice(_ context.Context, _, payReq string) PayResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ftype, ok := f.FailPay[payReq]; ok {
		return PayResult{FailureType: ftype, Stdouterr: "forced pay failure"}
	}
	f.Paid = append(f.Paid, payReq)
	return PayResult{Success: true}
}

//
// Test controls
//

// Settle marks an invoice settled at the given time.
func (f *FakeClient) Settle(rpcserver string, addIndex uint64, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutate(rpcserver, addIndex, func(rec *InvoiceRecord) {
		rec.Settled = true
		rec.State = StateSettled
		rec.SettleDate = at.Unix()
	})
}

// Cancel marks an invoice canceled.
func (f *FakeClient) Cancel(rpcserver string, addIndex uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutate(rpcserver, addIndex, func(rec *InvoiceRecord) {
		rec.Settled = false
		rec.State = StateCanceled
	})
}

// SetRecord rewrites arbitrary fields of a stored invoice record; tests
// use it to fabricate inconsistent node data.
func (f *FakeClient) SetRecord(rpcserver string, addIndex uint64, mutate func(*InvoiceRecord)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutate(rpcserver, addIndex, mutate)
}

func (f *FakeClient) mutate(rpcserver string, addIndex uint64, fn func(*InvoiceRecord)) {
	n := f.node(rpcserver)
	for i := range n.invoices {
		if n.invoices[i].AddIndex == addIndex {
			fn(&n.invoices[i])
			return
		}
	}
}
