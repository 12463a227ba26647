package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hetulpatel/cexarb/internal/models"
)

const insertProposal = `
INSERT INTO proposals (
	proposal_id, symbol, buy_exchange, sell_exchange, buy_price, sell_price,
	gross_spread_pct, fees_total_pct, slippage_est_pct, priority, net_roi_pct,
	net_profit_usd, qty_usd, transfer_type, accepted, reason, created_at,
	recorded_at, raw_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(proposal_id) DO NOTHING
`

// RecordProposals stores one scan's proposals, kept or filtered, in a single
// transaction. Re-recording a proposal id is a no-op.
func (s *Store) RecordProposals(ctx context.Context, batch []models.ProposalDecision) (err error) {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlite store not initialized")
	}
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, insertProposal)
	if err != nil {
		return err
	}
	defer stmt.Close()

	recordedAt := formatTime(time.Now())
	for _, d := range batch {
		o := d.Opportunity
		rawJSON, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("marshal proposal %s: %w", o.ProposalID, err)
		}
		if _, err := stmt.ExecContext(
			ctx,
			o.ProposalID,
			o.Symbol,
			o.BuyExchange,
			o.SellExchange,
			o.BuyPrice,
			o.SellPrice,
			o.GrossSpreadPct,
			o.FeesTotalPct,
			o.SlippageEstPct,
			o.Priority,
			o.NetROIPct,
			o.NetProfitUSD,
			o.QtyUSD,
			string(o.TransferType),
			boolInt(d.Accepted),
			string(d.Reason),
			formatTime(o.CreatedAt),
			recordedAt,
			string(rawJSON),
		); err != nil {
			return fmt.Errorf("insert proposal %s: %w", o.ProposalID, err)
		}
	}
	return tx.Commit()
}

// RecordExecution appends a terminal execution result.
func (s *Store) RecordExecution(ctx context.Context, r models.ExecutionResult) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlite store not initialized")
	}
	stepsJSON, err := json.Marshal(r.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	metaJSON, err := json.Marshal(r.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	query := `
INSERT INTO executions (
	exec_id, proposal_id, symbol, buy_exchange, sell_exchange, mode, status,
	reason, reason_detail, auto_trigger, qty_usd, pnl_usd, fees_usd,
	started_at, completed_at, steps_json, meta_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`
	_, err = s.db.ExecContext(
		ctx,
		query,
		r.ExecID,
		r.ProposalID,
		r.Symbol,
		r.BuyExchange,
		r.SellExchange,
		string(r.Mode),
		string(r.Status),
		string(r.Reason),
		r.ReasonDetail,
		boolInt(r.AutoTrigger),
		r.QtyUSD,
		r.PnLUSD,
		r.FeesUSD,
		formatTime(r.StartedAt),
		formatTime(r.CompletedAt),
		string(stepsJSON),
		string(metaJSON),
	)
	return err
}

// ProposalRecord is a stored proposal with its audit decision.
type ProposalRecord struct {
	Opportunity models.Opportunity
	Accepted    bool
	Reason      models.RejectReason
}

// ListProposals returns the most recent proposals, newest first.
func (s *Store) ListProposals(ctx context.Context, limit int) ([]ProposalRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT raw_json, accepted, reason FROM proposals
ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProposalRecord
	for rows.Next() {
		var (
			raw      string
			accepted int
			reason   string
		)
		if err := rows.Scan(&raw, &accepted, &reason); err != nil {
			return nil, err
		}
		var rec ProposalRecord
		if err := json.Unmarshal([]byte(raw), &rec.Opportunity); err != nil {
			return nil, fmt.Errorf("decode proposal: %w", err)
		}
		rec.Accepted = accepted == 1
		rec.Reason = models.RejectReason(reason)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListExecutions returns the most recent executions, newest first.
func (s *Store) ListExecutions(ctx context.Context, limit int) ([]models.ExecutionResult, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT exec_id, proposal_id, symbol, buy_exchange, sell_exchange, mode, status,
	reason, reason_detail, auto_trigger, qty_usd, pnl_usd, fees_usd,
	started_at, completed_at, steps_json, meta_json
FROM executions ORDER BY completed_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ExecutionResult
	for rows.Next() {
		var (
			r                    models.ExecutionResult
			mode, status, reason string
			auto                 int
			started, completed   string
			stepsJSON, metaJSON  string
		)
		if err := rows.Scan(&r.ExecID, &r.ProposalID, &r.Symbol, &r.BuyExchange, &r.SellExchange,
			&mode, &status, &reason, &r.ReasonDetail, &auto, &r.QtyUSD, &r.PnLUSD, &r.FeesUSD,
			&started, &completed, &stepsJSON, &metaJSON); err != nil {
			return nil, err
		}
		r.Mode = models.Mode(mode)
		r.Status = models.Status(status)
		r.Reason = models.RejectReason(reason)
		r.AutoTrigger = auto == 1
		r.StartedAt = parseTime(started)
		r.CompletedAt = parseTime(completed)
		if err := json.Unmarshal([]byte(stepsJSON), &r.Steps); err != nil {
			return nil, fmt.Errorf("decode steps %s: %w", r.ExecID, err)
		}
		if metaJSON != "" && metaJSON != "null" {
			if err := json.Unmarshal([]byte(metaJSON), &r.Meta); err != nil {
				return nil, fmt.Errorf("decode meta %s: %w", r.ExecID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RealizedPnL sums pnl_usd over filled executions.
func (s *Store) RealizedPnL(ctx context.Context) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(pnl_usd), 0) FROM executions WHERE status = ?`, string(models.StatusFilled)).Scan(&total)
	return total, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
