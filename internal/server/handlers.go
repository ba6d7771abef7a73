package server

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"LendView/internal/event"
	"LendView/internal/guard"
	fpmath "LendView/internal/math"
	"LendView/internal/risk"
)

type assetResponse struct {
	Address     string `json:"address"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Decimals    uint8  `json:"decimals"`
	Interactive bool   `json:"interactive"`
	Supported   bool   `json:"supported"`

	DepositAPY           string `json:"deposit_apy"`
	VariableBorrowAPR    string `json:"variable_borrow_apr"`
	LTV                  string `json:"ltv"`
	LiquidationThreshold string `json:"liquidation_threshold"`
	ReserveFactor        string `json:"reserve_factor"`
	LiquidationBonus     string `json:"liquidation_bonus"`
	TotalDeposits        string `json:"total_deposits"`
	TotalBorrows         string `json:"total_borrows"`
	AvailableLiquidity   string `json:"available_liquidity"`
	PriceUSD             string `json:"price_usd"`
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.readContext(r)
	defer cancel()

	out := make([]assetResponse, 0, s.registry.Len())
	for _, addr := range s.registry.Addresses() {
		out = append(out, s.assetResponse(ctx, addr))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	if _, known := s.registry.Lookup(addr); !known {
		s.writeError(w, http.StatusNotFound, "asset not registered")
		return
	}

	ctx, cancel := s.readContext(r)
	defer cancel()
	s.writeJSON(w, http.StatusOK, s.assetResponse(ctx, addr))
}

// assetResponse reads reserve state and price for one asset. Failed reads
// degrade to N/A fields rather than failing the whole response.
func (s *Server) assetResponse(ctx context.Context, addr common.Address) assetResponse {
	asset, _ := s.registry.Lookup(addr)
	resp := assetResponse{
		Address:     addr.Hex(),
		Symbol:      s.registry.Symbol(addr),
		Name:        asset.Name,
		Decimals:    s.registry.Decimals(addr),
		Interactive: asset.Interactive,
	}

	state, err := s.reader.AssetData(ctx, addr)
	if err != nil {
		s.log.Warn().Err(err).Str("asset", addr.Hex()).Msg("asset data read failed")
		state = nil
	}
	price, err := s.reader.AssetPrice(ctx, addr)
	if err != nil {
		s.log.Warn().Err(err).Str("asset", addr.Hex()).Msg("price read failed")
		price = nil
	}

	analytics := risk.Analyze(state, resp.Decimals, price)
	resp.Supported = analytics.Supported
	resp.DepositAPY = analytics.DepositAPY
	resp.VariableBorrowAPR = analytics.VariableBorrowAPR
	resp.LTV = analytics.LTV
	resp.LiquidationThreshold = analytics.LiquidationThreshold
	resp.ReserveFactor = analytics.ReserveFactor
	resp.LiquidationBonus = analytics.LiquidationBonus
	resp.TotalDeposits = analytics.TotalDeposits
	resp.TotalBorrows = analytics.TotalBorrows
	resp.AvailableLiquidity = analytics.AvailableLiquidity
	resp.PriceUSD = analytics.PriceUSD
	return resp
}

type userAssetResponse struct {
	Address           string `json:"address"`
	Symbol            string `json:"symbol"`
	Wallet            string `json:"wallet"`
	Deposited         string `json:"deposited"`
	Borrowed          string `json:"borrowed"`
	AvailableToBorrow string `json:"available_to_borrow"`
	CanBorrow         bool   `json:"can_borrow"`
}

type summaryResponse struct {
	User      string    `json:"user"`
	SessionID string    `json:"session_id"`
	TakenAt   time.Time `json:"taken_at"`

	TotalCollateralUSD  string `json:"total_collateral_usd"`
	TotalDebtUSD        string `json:"total_debt_usd"`
	AvailableBorrowsUSD string `json:"available_borrows_usd"`
	HealthFactor        string `json:"health_factor"`

	Assets []userAssetResponse `json:"assets"`
}

func (s *Server) handleUserSummary(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathAddress(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.readContext(r)
	defer cancel()

	sess, err := s.sessions.Open(ctx, user)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "session unavailable: "+err.Error())
		return
	}

	snap := sess.Snapshot()
	resp := summaryResponse{
		User:                user.Hex(),
		SessionID:           sess.ID.String(),
		TakenAt:             snap.TakenAt,
		TotalCollateralUSD:  fpmath.NotAvailable,
		TotalDebtUSD:        fpmath.NotAvailable,
		AvailableBorrowsUSD: fpmath.NotAvailable,
		HealthFactor:        fpmath.NotAvailable,
	}
	if snap.Risk != nil {
		resp.TotalCollateralUSD = fpmath.FormatUSD(snap.Risk.TotalCollateralUSD)
		resp.TotalDebtUSD = fpmath.FormatUSD(snap.Risk.TotalDebtUSD)
		resp.AvailableBorrowsUSD = fpmath.FormatUSD(snap.Risk.AvailableBorrowsUSD)
		resp.HealthFactor = snap.Risk.Health.Display()
	}

	for _, addr := range s.registry.Addresses() {
		view, ok := snap.Assets[addr]
		if !ok {
			continue
		}
		decimals := s.registry.Decimals(addr)
		resp.Assets = append(resp.Assets, userAssetResponse{
			Address:           addr.Hex(),
			Symbol:            s.registry.Symbol(addr),
			Wallet:            fpmath.FormatTokenAmount(view.Wallet, decimals, fpmath.TokenDisplayDecimals),
			Deposited:         fpmath.FormatTokenAmount(view.Deposit, decimals, fpmath.TokenDisplayDecimals),
			Borrowed:          fpmath.FormatTokenAmount(view.Debt, decimals, fpmath.TokenDisplayDecimals),
			AvailableToBorrow: fpmath.FormatTokenAmount(view.AvailableToBorrow, decimals, fpmath.TokenDisplayDecimals),
			CanBorrow:         view.AvailableToBorrow != nil && view.AvailableToBorrow.Sign() > 0,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type historyEntry struct {
	Kind        string    `json:"kind"`
	Asset       string    `json:"asset"`
	Symbol      string    `json:"symbol"`
	Amount      string    `json:"amount"`
	Repayer     string    `json:"repayer,omitempty"`
	TxHash      string    `json:"tx_hash"`
	LogIndex    uint      `json:"log_index"`
	BlockNumber uint64    `json:"block_number"`
	Timestamp   time.Time `json:"timestamp"`
}

func (s *Server) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathAddress(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.readContext(r)
	defer cancel()

	sess, err := s.sessions.Open(ctx, user)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "session unavailable: "+err.Error())
		return
	}

	events := sess.History()
	out := make([]historyEntry, 0, len(events))
	for _, ev := range events {
		out = append(out, s.historyEntry(ev))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) historyEntry(ev event.PositionEvent) historyEntry {
	entry := historyEntry{
		Kind:        ev.Kind.String(),
		Asset:       ev.Asset.Hex(),
		Symbol:      s.registry.Symbol(ev.Asset),
		Amount:      fpmath.FormatTokenAmount(ev.Amount, s.registry.Decimals(ev.Asset), fpmath.TokenDisplayDecimals),
		TxHash:      ev.TxHash.Hex(),
		LogIndex:    ev.LogIndex,
		BlockNumber: ev.BlockNumber,
		Timestamp:   ev.Timestamp,
	}
	if ev.Repayer != nil {
		entry.Repayer = ev.Repayer.Hex()
	}
	return entry
}

// maxRepayLiteral is the API-level spelling for a full repayment. It is
// translated into the structured repay form here at the edge; nothing below
// the handler layer ever sees the string.
const maxRepayLiteral = "MAX"

type validateRequest struct {
	Action string `json:"action"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type validateResponse struct {
	Action          string `json:"action"`
	Verdict         string `json:"verdict"`
	Reason          string `json:"reason,omitempty"`
	Detail          string `json:"detail,omitempty"`
	EffectiveAmount string `json:"effective_amount,omitempty"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathAddress(w, r)
	if !ok {
		return
	}

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Asset) {
		s.writeError(w, http.StatusBadRequest, "invalid asset address")
		return
	}
	asset := common.HexToAddress(req.Asset)

	action, ok := parseAction(req.Action)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown action "+req.Action)
		return
	}

	ctx, cancel := s.readContext(r)
	defer cancel()

	sess, err := s.sessions.Open(ctx, user)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "session unavailable: "+err.Error())
		return
	}

	var result guard.ValidationResult
	if action == guard.ActionRepay && strings.EqualFold(req.Amount, maxRepayLiteral) {
		result = sess.ValidateRepay(asset, guard.RepayFull())
	} else {
		amount, err := parseAmount(req.Amount, s.registry.Decimals(asset))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid amount: "+err.Error())
			return
		}
		if action == guard.ActionRepay {
			result = sess.ValidateRepay(asset, guard.RepayExact(amount))
		} else {
			result = sess.Validate(action, asset, amount)
		}
	}

	resp := validateResponse{
		Action:  result.Action.String(),
		Verdict: result.Verdict.String(),
		Reason:  string(result.Reason),
		Detail:  result.Detail,
	}
	if result.EffectiveAmount != nil {
		resp.EffectiveAmount = result.EffectiveAmount.String()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	s.sessions.Close(user)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pathAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		s.writeError(w, http.StatusBadRequest, "invalid address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func parseAction(raw string) (guard.Action, bool) {
	switch raw {
	case "deposit":
		return guard.ActionDeposit, true
	case "withdraw":
		return guard.ActionWithdraw, true
	case "borrow":
		return guard.ActionBorrow, true
	case "repay":
		return guard.ActionRepay, true
	default:
		return 0, false
	}
}

// parseAmount converts a decimal token amount ("12.5") into base units,
// truncating precision beyond the asset's decimals.
func parseAmount(raw string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return d.Shift(int32(decimals)).Truncate(0).BigInt(), nil
}
