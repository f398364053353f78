package rpc

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"stablecore/crypto"
	"stablecore/native/common"
	"stablecore/native/stable"
)

type addressParams struct {
	Address string `json:"address"`
}

type assetAmountParams struct {
	User   string `json:"user"`
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

type amountParams struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

type compositeParams struct {
	User             string `json:"user"`
	Symbol           string `json:"symbol"`
	CollateralAmount string `json:"collateralAmount"`
	DebtAmount       string `json:"debtAmount"`
}

type liquidateParams struct {
	Liquidator  string `json:"liquidator"`
	User        string `json:"user"`
	Symbol      string `json:"symbol"`
	DebtToCover string `json:"debtToCover"`
}

type balanceParams struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

type symbolParams struct {
	Symbol string `json:"symbol"`
}

type quoteParams struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

type submitPriceParams struct {
	Feed  string `json:"feed"`
	Price string `json:"price"`
}

type pauseParams struct {
	Paused bool `json:"paused"`
}

type txResult struct {
	TxID string `json:"txId"`
}

type liquidateResult struct {
	TxID   string `json:"txId"`
	Seized string `json:"seized"`
}

type positionResult struct {
	Address    string            `json:"address"`
	Collateral map[string]string `json:"collateral"`
	Debt       string            `json:"debt"`
}

type accountInfoResult struct {
	TotalDebt       string `json:"totalDebt"`
	CollateralValue string `json:"collateralValue"`
}

type assetResult struct {
	Symbol string `json:"symbol"`
	Feed   string `json:"feed"`
}

type totalsResult struct {
	TotalDebt  string            `json:"totalDebt"`
	Collateral map[string]string `json:"collateral"`
}

func (s *Server) methods() map[string]methodHandler {
	return map[string]methodHandler{
		"stable_depositCollateral":    {mutating: true, fn: s.handleDepositCollateral},
		"stable_mintDebt":             {mutating: true, fn: s.handleMintDebt},
		"stable_redeemCollateral":     {mutating: true, fn: s.handleRedeemCollateral},
		"stable_burnDebt":             {mutating: true, fn: s.handleBurnDebt},
		"stable_depositAndMint":       {mutating: true, fn: s.handleDepositAndMint},
		"stable_redeemAndBurn":        {mutating: true, fn: s.handleRedeemAndBurn},
		"stable_liquidate":            {mutating: true, fn: s.handleLiquidate},
		"stable_submitPrice":          {mutating: true, fn: s.handleSubmitPrice},
		"stable_setPaused":            {mutating: true, fn: s.handleSetPaused},
		"stable_getPosition":          {fn: s.handleGetPosition},
		"stable_getHealthFactor":      {fn: s.handleGetHealthFactor},
		"stable_getAccountInfo":       {fn: s.handleGetAccountInfo},
		"stable_getCollateralBalance": {fn: s.handleGetCollateralBalance},
		"stable_listCollateral":       {fn: s.handleListCollateral},
		"stable_getAssetFeed":         {fn: s.handleGetAssetFeed},
		"stable_quoteValue":           {fn: s.handleQuoteValue},
		"stable_quoteQuantity":        {fn: s.handleQuoteQuantity},
		"stable_getTotals":            {fn: s.handleGetTotals},
	}
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("expected a single parameter object")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(value string) (crypto.Address, error) {
	return crypto.DecodeAddress(strings.TrimSpace(value))
}

func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, errors.New("amount must be a base-10 integer")
	}
	return amount, nil
}

// writeEngineError maps engine failures onto JSON-RPC error codes. Input
// validation failures are the caller's fault; everything else is reported as
// a server-side rejection with the specific failure kind as the message.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, stable.ErrInvalidAmount),
		errors.Is(err, stable.ErrUnsupportedAsset):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, common.ErrModulePaused),
		errors.Is(err, common.ErrReentrantCall):
		writeError(w, http.StatusServiceUnavailable, id, codeServerError, err.Error(), nil)
	default:
		writeError(w, http.StatusConflict, id, codeServerError, err.Error(), nil)
	}
}

func (s *Server) observe(op string, start time.Time, err error) {
	s.metrics.Observe(op, start, err)
	if err != nil {
		s.log.Warn("engine operation rejected", "operation", op, "error", err)
	}
}

func (s *Server) handleDepositCollateral(w http.ResponseWriter, req *RPCRequest) {
	var params assetAmountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	start := time.Now()
	err = s.engine.DepositCollateral(user, params.Symbol, amount)
	s.observe("deposit_collateral", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, txResult{TxID: uuid.NewString()})
}

func (s *Server) handleMintDebt(w http.ResponseWriter, req *RPCRequest) {
	var params amountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	start := time.Now()
	err = s.engine.MintDebt(user, amount)
	s.observe("mint_debt", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, txResult{TxID: uuid.NewString()})
}

func (s *Server) handleRedeemCollateral(w http.ResponseWriter, req *RPCRequest) {
	var params assetAmountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	start := time.Now()
	err = s.engine.RedeemCollateral(user, params.Symbol, amount)
	s.observe("redeem_collateral", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, txResult{TxID: uuid.NewString()})
}

func (s *Server) handleBurnDebt(w http.ResponseWriter, req *RPCRequest) {
	var params amountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	start := time.Now()
	err = s.engine.BurnDebt(user, amount)
	s.observe("burn_debt", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, txResult{TxID: uuid.NewString()})
}

func (s *Server) handleDepositAndMint(w http.ResponseWriter, req *RPCRequest) {
	var params compositeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	collateralAmount, err := parseAmount(params.CollateralAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid collateral amount", err.Error())
		return
	}
	debtAmount, err := parseAmount(params.DebtAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid debt amount", err.Error())
		return
	}
	start := time.Now()
	err = s.engine.DepositAndMint(user, params.Symbol, collateralAmount, debtAmount)
	s.observe("deposit_and_mint", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, txResult{TxID: uuid.NewString()})
}

func (s *Server) handleRedeemAndBurn(w http.ResponseWriter, req *RPCRequest) {
	var params compositeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	collateralAmount, err := parseAmount(params.CollateralAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid collateral amount", err.Error())
		return
	}
	debtAmount, err := parseAmount(params.DebtAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid debt amount", err.Error())
		return
	}
	start := time.Now()
	err = s.engine.RedeemAndBurn(user, params.Symbol, collateralAmount, debtAmount)
	s.observe("redeem_and_burn", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, txResult{TxID: uuid.NewString()})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, req *RPCRequest) {
	var params liquidateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	liquidator, err := parseAddress(params.Liquidator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid liquidator address", err.Error())
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid user address", err.Error())
		return
	}
	debtToCover, err := parseAmount(params.DebtToCover)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid debtToCover", err.Error())
		return
	}
	start := time.Now()
	seized, err := s.engine.Liquidate(liquidator, user, params.Symbol, debtToCover)
	s.observe("liquidate", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, liquidateResult{TxID: uuid.NewString(), Seized: seized.String()})
}

func (s *Server) handleSubmitPrice(w http.ResponseWriter, req *RPCRequest) {
	var params submitPriceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid price", err.Error())
		return
	}
	if err := s.oracle.Submit(params.Feed, price); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, txResult{TxID: uuid.NewString()})
}

func (s *Server) handleSetPaused(w http.ResponseWriter, req *RPCRequest) {
	var params pauseParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	s.pauses.SetPaused("stable", params.Paused)
	s.log.Info("module pause updated", "paused", params.Paused)
	writeResult(w, req.ID, txResult{TxID: uuid.NewString()})
}

func (s *Server) handleGetPosition(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	pos, err := s.engine.Position(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	result := positionResult{Address: pos.Address.String(), Collateral: make(map[string]string), Debt: pos.Debt.String()}
	for symbol, amount := range pos.Collateral {
		result.Collateral[symbol] = amount.String()
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleGetHealthFactor(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	factor, err := s.engine.HealthFactor(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"healthFactor": factor.String()})
}

func (s *Server) handleGetAccountInfo(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	debt, value, err := s.engine.AccountInfo(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, accountInfoResult{TotalDebt: debt.String(), CollateralValue: value.String()})
}

func (s *Server) handleGetCollateralBalance(w http.ResponseWriter, req *RPCRequest) {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	balance, err := s.engine.CollateralBalance(addr, params.Symbol)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"balance": balance.String()})
}

func (s *Server) handleListCollateral(w http.ResponseWriter, req *RPCRequest) {
	assets := s.engine.Assets()
	result := make([]assetResult, 0, len(assets))
	for _, asset := range assets {
		result = append(result, assetResult{Symbol: asset.Symbol, Feed: asset.Feed})
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleGetAssetFeed(w http.ResponseWriter, req *RPCRequest) {
	var params symbolParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	feed, err := s.engine.Feed(params.Symbol)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, assetResult{Symbol: params.Symbol, Feed: feed})
}

func (s *Server) handleQuoteValue(w http.ResponseWriter, req *RPCRequest) {
	var params quoteParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	value, err := s.engine.QuoteValue(params.Symbol, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"value": value.String()})
}

func (s *Server) handleQuoteQuantity(w http.ResponseWriter, req *RPCRequest) {
	var params quoteParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	value, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid value", err.Error())
		return
	}
	quantity, err := s.engine.QuoteQuantity(params.Symbol, value)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"quantity": quantity.String()})
}

func (s *Server) handleGetTotals(w http.ResponseWriter, req *RPCRequest) {
	totals, err := s.engine.Totals()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	result := totalsResult{TotalDebt: totals.TotalDebt.String(), Collateral: make(map[string]string)}
	for symbol, amount := range totals.Collateral {
		result.Collateral[symbol] = amount.String()
	}
	writeResult(w, req.ID, result)
}
