package consensus

import (
	"context"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/crypto"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/leader"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/types"
	"github.com/Subaskar-S/High-Performance-Blockchain-Node/internal/validation"
)

// handlePropose implements section 4.5's proposal-handling steps.
func (d *Driver) handlePropose(ctx context.Context, msg *types.Message) {
	if msg.Height != d.hs.height || msg.View != d.hs.view {
		return
	}
	expected := leader.ForViewHeight(d.reg, msg.View, msg.Height)
	if msg.Sender != expected {
		if d.log != nil {
			d.log.Warnf("consensus: Propose from %d, expected leader %d at (v=%d h=%d)", msg.Sender, expected, msg.View, msg.Height)
		}
		return
	}
	v, err := d.reg.ByID(msg.Sender)
	if err != nil || !msg.VerifySignature(v.PublicKey) || msg.Block == nil {
		return
	}
	d.acceptProposal(ctx, msg.View, msg.Height, msg.Block, false)
}

// acceptProposal validates block against the current parent and, if
// valid, emits this replica's Prepare vote. skipLockCheck is set by the
// NewView path, which has already established block is the protocol's
// safe value via the view-change certificate — overriding whatever this
// replica's own (possibly stale) lock says.
func (d *Driver) acceptProposal(ctx context.Context, view, height uint64, block *types.Block, skipLockCheck bool) {
	if d.hs.phase == PhasePrepared || d.hs.phase == PhaseCommitting || d.hs.phase == PhaseCommitted {
		return // already acted on a proposal this height
	}
	d.hs.rememberBlock(block)

	if !skipLockCheck && d.hs.lockedCert != nil && d.hs.lockedCert.BlockHash != block.Hash() {
		return
	}

	parent, err := d.parentBlock(height)
	if err != nil {
		return
	}
	simulatedRoot, err := d.st.ComputeStateRoot(block.Transactions, d.params.Fee)
	if err != nil {
		return
	}
	ctxCheck := validation.BlockContext{
		Parent:          parent,
		View:            view,
		LocalTimeMillis: d.nowMillis(),
		SimulatedRoot:   simulatedRoot,
	}
	if err := validation.ValidateBlock(block, ctxCheck, d.reg, d.params.Validation); err != nil {
		if d.log != nil {
			d.log.Warnf("consensus: rejected proposal at (v=%d h=%d): %v", view, height, err)
		}
		return
	}

	prepare := &types.Message{Kind: types.KindPrepare, View: view, Height: height, BlockHash: block.Hash()}
	d.sign(prepare)
	d.hs.phase = PhasePrepared
	d.broadcastConsensus(ctx, prepare)
	d.handlePrepare(ctx, prepare)
}

// handlePrepare aggregates Prepare votes toward a prepared certificate.
func (d *Driver) handlePrepare(ctx context.Context, msg *types.Message) {
	if msg.Height != d.hs.height {
		return
	}
	if err := validation.ValidateVote(msg, d.reg, d.hs.view, d.hs.height, d.params.Validation); err != nil {
		return
	}
	bucket := d.hs.prepareBucket(msg.View)
	added, equivocated := bucket.add(msg.Sender, msg.BlockHash, msg.Signature)
	if equivocated && d.log != nil {
		d.log.Warnf("consensus: equivocating Prepare from %d at (v=%d h=%d)", msg.Sender, msg.View, msg.Height)
	}
	if !added {
		return
	}
	if bucket.count(msg.BlockHash) != d.reg.Quorum() {
		return
	}
	cert := &types.PreparedCertificate{View: msg.View, Height: msg.Height, BlockHash: msg.BlockHash, Sigs: bucket.signatures(msg.BlockHash)}
	d.hs.lockedCert = cert
	d.hs.phase = PhaseCommitting

	commit := &types.Message{Kind: types.KindCommit, View: msg.View, Height: msg.Height, BlockHash: msg.BlockHash}
	d.sign(commit)
	d.broadcastConsensus(ctx, commit)
	d.handleCommit(ctx, commit)
}

// handleCommit aggregates Commit votes toward finalization.
func (d *Driver) handleCommit(ctx context.Context, msg *types.Message) {
	if msg.Height <= d.st.LatestHeight() {
		return
	}
	if msg.Height != d.hs.height {
		return
	}
	if err := validation.ValidateVote(msg, d.reg, d.hs.view, d.hs.height, d.params.Validation); err != nil {
		return
	}
	bucket := d.hs.commitBucket(msg.View)
	added, equivocated := bucket.add(msg.Sender, msg.BlockHash, msg.Signature)
	if equivocated && d.log != nil {
		d.log.Warnf("consensus: equivocating Commit from %d at (v=%d h=%d)", msg.Sender, msg.View, msg.Height)
	}
	if !added {
		return
	}
	if bucket.count(msg.BlockHash) != d.reg.Quorum() {
		return
	}
	block, ok := d.hs.seenBlocks[msg.BlockHash]
	if !ok {
		if d.log != nil {
			d.log.Warnf("consensus: reached commit quorum for unknown block %s at height %d", msg.BlockHash, msg.Height)
		}
		return
	}
	block.QC = &types.QuorumCertificate{View: msg.View, Height: msg.Height, BlockHash: msg.BlockHash, Signatures: bucket.signatures(msg.BlockHash)}

	if err := d.st.ApplyBlock(block); err != nil {
		d.halt(err)
		return
	}
	d.mp.RemoveCommitted(block.Transactions)
	d.hs.phase = PhaseCommitted
	d.emitCommit(block)
	d.advanceHeight(ctx, block.Header.Height+1)
}

// advanceHeight resets per-height state, starts the new height's timer
// at view 0, and replays any buffered future-height messages.
func (d *Driver) advanceHeight(ctx context.Context, newHeight uint64) {
	d.timer.stop()
	d.hs = newHeightState(newHeight)
	d.updateGauges()
	d.resetTimer(0)

	pending := d.futureMsgs[newHeight]
	delete(d.futureMsgs, newHeight)
	d.maybePropose(ctx)
	for _, m := range pending {
		d.dispatch(ctx, m)
	}
}

// handleTimeout drives a view change after the per-height timer fires.
func (d *Driver) handleTimeout(ctx context.Context) {
	view := d.hs.view
	height := d.hs.height
	newView := view + 1

	var last types.LastPrepared
	if d.hs.lockedCert != nil && d.hs.lockedCert.Height == height {
		last = types.LastPrepared{Present: true, Certificate: *d.hs.lockedCert}
	}

	vc := &types.Message{Kind: types.KindViewChange, View: newView, Height: height, NewViewNumber: newView, Last: last}
	d.sign(vc)
	d.hs.view = newView
	d.hs.phase = PhaseViewChanging
	d.updateGauges()
	if d.log != nil {
		d.log.Warnf("consensus: timeout at (v=%d h=%d), broadcasting ViewChange(%d)", view, height, newView)
	}
	d.broadcastConsensus(ctx, vc)
	d.handleViewChange(ctx, vc)
	d.resetTimer(newView)
}

// handleViewChange collects ViewChange messages toward a view-change
// certificate for (new_view, height).
func (d *Driver) handleViewChange(ctx context.Context, msg *types.Message) {
	if msg.Height != d.hs.height {
		return
	}
	v, err := d.reg.ByID(msg.Sender)
	if err != nil || !msg.VerifySignature(v.PublicKey) {
		return
	}
	bucket, ok := d.hs.viewChanges[msg.NewViewNumber]
	if !ok {
		bucket = make(viewChangeBucket)
		d.hs.viewChanges[msg.NewViewNumber] = bucket
	}
	if !bucket.add(msg) {
		return
	}
	if len(bucket) != d.reg.Quorum() {
		return
	}
	if leader.IsLeader(d.reg, d.self, msg.NewViewNumber, d.hs.height) {
		d.buildAndBroadcastNewView(ctx, msg.NewViewNumber, bucket)
	}
}

// buildAndBroadcastNewView is the new leader's duty: re-propose the
// highest-view prepared block if the certificate contains one (the
// safe-value rule), otherwise a fresh block.
func (d *Driver) buildAndBroadcastNewView(ctx context.Context, newView uint64, bucket viewChangeBucket) {
	last, hasLast := bucket.highestPrepared()
	var block *types.Block
	if hasLast {
		block = d.hs.seenBlocks[last.Certificate.BlockHash]
		if block == nil {
			if d.log != nil {
				d.log.Errorf("consensus: missing body for safe-value block %s at height %d, cannot form NewView", last.Certificate.BlockHash, d.hs.height)
			}
			return
		}
	} else {
		built, err := d.buildProposal(newView, d.hs.height)
		if err != nil {
			if d.log != nil {
				d.log.Errorf("consensus: failed to build fresh proposal for NewView(%d): %v", newView, err)
			}
			return
		}
		block = built
		d.hs.rememberBlock(block)
	}

	viewChanges := make([]types.Message, 0, len(bucket))
	for _, m := range bucket {
		viewChanges = append(viewChanges, *m)
	}
	nv := &types.Message{
		Kind:           types.KindNewView,
		View:           newView,
		Height:         d.hs.height,
		Block:          block,
		ViewChangeCert: bucket.signatureShares(),
		ViewChanges:    viewChanges,
	}
	d.sign(nv)
	d.broadcastConsensus(ctx, nv)
	d.handleNewView(ctx, nv)
}

// handleNewView validates a NewView message's certificate and
// safe-value block, then enters new_view and processes the contained
// proposal.
func (d *Driver) handleNewView(ctx context.Context, msg *types.Message) {
	if msg.Height != d.hs.height || msg.Block == nil {
		return
	}
	v, err := d.reg.ByID(msg.Sender)
	if err != nil || !msg.VerifySignature(v.PublicKey) {
		return
	}
	if msg.Sender != leader.ForViewHeight(d.reg, msg.View, msg.Height) {
		return
	}
	if distinctSigners(msg.ViewChangeCert) < d.reg.Quorum() {
		return
	}

	var highestView uint64
	var safeHash crypto.Hash
	foundSafeValue := false
	for i := range msg.ViewChanges {
		vc := msg.ViewChanges[i]
		vv, err := d.reg.ByID(vc.Sender)
		if err != nil || !vc.VerifySignature(vv.PublicKey) {
			return
		}
		if vc.NewViewNumber != msg.View || vc.Height != msg.Height {
			return
		}
		if vc.Last.Present && (!foundSafeValue || vc.Last.Certificate.View > highestView) {
			highestView = vc.Last.Certificate.View
			safeHash = vc.Last.Certificate.BlockHash
			foundSafeValue = true
		}
	}
	if foundSafeValue && msg.Block.Hash() != safeHash {
		if d.log != nil {
			d.log.Warnf("consensus: NewView(%d) violates safe-value rule at height %d", msg.View, msg.Height)
		}
		return
	}

	d.hs.view = msg.View
	d.hs.phase = PhaseIdle
	d.updateGauges()
	d.timer.stop()
	d.resetTimer(msg.View)
	d.acceptProposal(ctx, msg.View, msg.Height, msg.Block, true)
}

func distinctSigners(sigs []types.SignatureShare) int {
	seen := make(map[types.ValidatorID]struct{}, len(sigs))
	for _, s := range sigs {
		seen[s.Signer] = struct{}{}
	}
	return len(seen)
}

// handleBlockGossip applies a gossiped, already-certified block for
// catch-up: it applies only a block at exactly its latest committed
// height plus one, verifying its quorum certificate independently rather
// than running the vote protocol for that height. Blocks at any other
// height are dropped.
func (d *Driver) handleBlockGossip(ctx context.Context, block *types.Block) {
	if block == nil || block.QC == nil {
		return
	}
	latest := d.st.LatestHeight()
	if block.Header.Height <= latest {
		return
	}
	if block.Header.Height != latest+1 {
		return // out-of-order catch-up block; wait for the contiguous one
	}
	if !d.verifyQC(block.QC, block.Hash()) {
		if d.log != nil {
			d.log.Warnf("consensus: rejected gossiped block %d: invalid quorum certificate", block.Header.Height)
		}
		return
	}
	if err := d.st.ApplyBlock(block); err != nil {
		d.halt(err)
		return
	}
	d.mp.RemoveCommitted(block.Transactions)
	d.emitCommit(block)

	if block.Header.Height >= d.hs.height {
		d.advanceHeight(ctx, block.Header.Height+1)
	}
}

// verifyQC checks that a quorum certificate carries q = 2f+1 distinct,
// valid signatures over (view, height, blockHash).
func (d *Driver) verifyQC(qc *types.QuorumCertificate, hash crypto.Hash) bool {
	if qc.BlockHash != hash {
		return false
	}
	if qc.DistinctSigners() < d.reg.Quorum() || qc.DistinctSigners() != len(qc.Signatures) {
		return false
	}
	for _, s := range qc.Signatures {
		v, err := d.reg.ByID(s.Signer)
		if err != nil {
			return false
		}
		vote := &types.Message{Kind: types.KindCommit, Sender: s.Signer, View: qc.View, Height: qc.Height, BlockHash: qc.BlockHash, Signature: s.Signature}
		if !vote.VerifySignature(v.PublicKey) {
			return false
		}
	}
	return true
}
