package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultTradeLimit = 100

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log *zap.Logger
	db  *gorm.DB
	now func() time.Time
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, db *gorm.DB) *APIHandler {
	return &APIHandler{log: log, db: db, now: time.Now}
}

// TradesHandler returns ledger rows, newest first. ?account= filters by
// account and ?limit= caps the result.
func (h *APIHandler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradeLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	q := h.db.WithContext(r.Context()).Order("created_at desc, id desc").Limit(limit)
	if account := r.URL.Query().Get("account"); account != "" {
		q = q.Where("account_id = ?", account)
	}

	var trades []models.TradeRecord
	if err := q.Find(&trades).Error; err != nil {
		h.log.Error("Failed to get trades from database", zap.Error(err))
		http.Error(w, "Failed to get trades", http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.log, trades)
}

// StatsDetail holds calculated statistics for a given period.
type StatsDetail struct {
	TotalTrades      int64   `json:"total_trades"`
	ProfitableTrades int64   `json:"profitable_trades"`
	WinRate          float64 `json:"win_rate"`
	TotalProfit      float64 `json:"total_profit"`
	Volume           float64 `json:"volume"`
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	Since24h   StatsDetail `json:"since_24h"`
	AllTime    StatsDetail `json:"all_time"`
	OpenLegs   int64       `json:"open_legs"`
	AccountID  string      `json:"account_id,omitempty"`
	ComputedAt time.Time   `json:"computed_at"`
}

type pairLegs struct {
	buy, sell *models.TradeRecord
}

// StatisticsHandler pairs buy and sell legs and reports realised profit.
// A buy leg without a sell leg is counted in OpenLegs and left out of the
// profit figures.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	q := h.db.WithContext(r.Context()).Order("id asc")
	account := r.URL.Query().Get("account")
	if account != "" {
		q = q.Where("account_id = ?", account)
	}

	var rows []models.TradeRecord
	if err := q.Find(&rows).Error; err != nil {
		h.log.Error("Failed to get trades for statistics", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.log, computeStatistics(rows, account, h.now()))
}

func computeStatistics(rows []models.TradeRecord, account string, now time.Time) StatisticsResponse {
	pairs := make(map[string]*pairLegs)
	order := make([]string, 0, len(rows)/2)
	for i := range rows {
		row := &rows[i]
		p, ok := pairs[row.PairID]
		if !ok {
			p = &pairLegs{}
			pairs[row.PairID] = p
			order = append(order, row.PairID)
		}
		switch row.Side {
		case models.SideBuy:
			p.buy = row
		case models.SideSell:
			p.sell = row
		}
	}

	since24h := now.Add(-24 * time.Hour)
	resp := StatisticsResponse{AccountID: account, ComputedAt: now.UTC()}
	allProfit, dayProfit := decimal.Zero, decimal.Zero
	for _, id := range order {
		p := pairs[id]
		if p.buy == nil || p.sell == nil {
			if p.buy != nil {
				resp.OpenLegs++
			}
			continue
		}
		profit := decimal.NewFromFloat(p.sell.TotalAmount).Sub(decimal.NewFromFloat(p.buy.TotalAmount))

		addPair(&resp.AllTime, profit, p.buy.TotalAmount)
		allProfit = allProfit.Add(profit)
		if p.buy.CreatedAt.After(since24h) {
			addPair(&resp.Since24h, profit, p.buy.TotalAmount)
			dayProfit = dayProfit.Add(profit)
		}
	}
	resp.AllTime.TotalProfit = allProfit.Round(2).InexactFloat64()
	resp.Since24h.TotalProfit = dayProfit.Round(2).InexactFloat64()
	resp.AllTime.WinRate = winRate(resp.AllTime)
	resp.Since24h.WinRate = winRate(resp.Since24h)
	return resp
}

func addPair(s *StatsDetail, profit decimal.Decimal, volume float64) {
	s.TotalTrades++
	if profit.IsPositive() {
		s.ProfitableTrades++
	}
	s.Volume += volume
}

func winRate(s StatsDetail) float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return float64(s.ProfitableTrades) / float64(s.TotalTrades)
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("Failed to write response", zap.Error(err))
	}
}
