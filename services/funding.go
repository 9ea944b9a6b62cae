package services

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/skip2/go-qrcode"

	core "taskmarket-backend/core/marketplace"
)

// escrowReader is the slice of the engine the funding service needs.
type escrowReader interface {
	Task(ctx context.Context, addr core.Address) (core.Task, error)
	Bid(ctx context.Context, addr core.Address) (core.Bid, error)
}

// FundingService produces funding instructions for accepted bids: the
// payment URI a wallet needs to move the bid amount into escrow, and a
// QR rendering of it.
type FundingService struct {
	engine escrowReader
}

// NewFundingService creates a new funding service.
func NewFundingService(engine escrowReader) *FundingService {
	return &FundingService{engine: engine}
}

// FundingInfo describes how to fund a task's escrow.
type FundingInfo struct {
	Task        core.Address `json:"task"`
	Bid         core.Address `json:"bid"`
	EscrowVault core.Address `json:"escrow_vault"`
	Amount      uint64       `json:"amount"`
	PaymentURI  string       `json:"payment_uri"`
}

// FundingInfo resolves the accepted bid for a task and builds the
// payment URI targeting the escrow's vault address.
func (s *FundingService) FundingInfo(ctx context.Context, taskAddr core.Address) (FundingInfo, error) {
	task, err := s.engine.Task(ctx, taskAddr)
	if err != nil {
		return FundingInfo{}, err
	}
	if task.AcceptedBid == nil {
		return FundingInfo{}, core.ErrNoAcceptedBid
	}
	bid, err := s.engine.Bid(ctx, *task.AcceptedBid)
	if err != nil {
		return FundingInfo{}, err
	}

	vault := core.EscrowVaultAddress(core.EscrowAddress(task.Addr))
	return FundingInfo{
		Task:        task.Addr,
		Bid:         bid.Addr,
		EscrowVault: vault,
		Amount:      bid.Amount,
		PaymentURI:  fmt.Sprintf("%s?amount=%d", vault, bid.Amount),
	}, nil
}

// FundingQRCode renders the funding payment URI as a PNG QR code.
func (s *FundingService) FundingQRCode(ctx context.Context, taskAddr core.Address) ([]byte, error) {
	info, err := s.FundingInfo(ctx, taskAddr)
	if err != nil {
		return nil, err
	}

	qr, err := qrcode.New(info.PaymentURI, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(256)); err != nil {
		return nil, fmt.Errorf("failed to encode QR code to PNG: %w", err)
	}

	return buf.Bytes(), nil
}
