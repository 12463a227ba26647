package arb

import (
	"math"
	"time"

	"github.com/hetulpatel/cexarb/internal/models"
)

const (
	epsilon = 1e-9

	// liquidityShare caps a trade at this fraction of the thinner venue.
	liquidityShare = 0.25
	maxPriority    = 0.25
)

// SuggestQtyUSD sizes a trade between buy and sell. The result stays inside
// [QtyMinUSD, QtyMaxUSD]; ok is false when the liquidity cap falls below the
// floor, since no admissible size exists then.
func SuggestQtyUSD(s Sizing, buy, sell VenueConfig, symbol string) (qty float64, capUSD float64, ok bool) {
	value := math.Min(math.Max(s.BaseQtyUSD, s.QtyMinUSD), s.QtyMaxUSD)

	capUSD = liquidityShare * thinnest(buy.BalanceUSD, sell.BalanceUSD, buy.DepthUSD, sell.DepthUSD)
	if capUSD > 0 {
		value = math.Min(value, capUSD)
	}

	if vol := s.VolatilityBySymbol[symbol]; vol > 0 {
		value = value / (1 + vol)
	}

	qty = math.Max(s.QtyMinUSD, math.Min(value, s.QtyMaxUSD))
	if capUSD > 0 && qty > capUSD+epsilon {
		return qty, capUSD, false
	}
	return qty, capUSD, true
}

// thinnest returns the smallest positive value, or 0 if none is positive.
func thinnest(values ...float64) float64 {
	out := 0.0
	for _, v := range values {
		if v <= 0 {
			continue
		}
		if out == 0 || v < out {
			out = v
		}
	}
	return out
}

type quotePair struct {
	symbol    string
	buy, sell VenueConfig
	buyPx     float64
	sellPx    float64
	priority  float64
	latency   time.Duration
	createdAt time.Time
}

// evaluate prices one ordered venue pair. The bool is false when no
// admissible size exists.
func evaluate(q quotePair, sizing Sizing, chainETA time.Duration) (models.Opportunity, bool) {
	buyBps := q.buy.spreadBps(q.symbol)
	sellBps := q.sell.spreadBps(q.symbol)
	ask := q.buyPx * (1 + buyBps/10000)
	bid := q.sellPx * (1 - sellBps/10000)
	gross := (bid - ask) / ask * 100

	qty, capUSD, ok := SuggestQtyUSD(sizing, q.buy, q.sell, q.symbol)
	if !ok {
		return models.Opportunity{}, false
	}

	transfer := models.TransferChain
	transferFee := q.buy.withdrawalFee(q.symbol)
	eta := int(chainETA / time.Second)
	if q.buy.InternalTransfer && q.sell.InternalTransfer {
		transfer = models.TransferInternal
		transferFee = 0
		eta = 0
	}
	transferPct := 0.0
	if qty > epsilon {
		transferPct = transferFee / qty * 100
	}
	fees := q.buy.TakerFeePct + q.sell.TakerFeePct + transferPct

	depth := math.Min(q.buy.DepthUSD, q.sell.DepthUSD)
	ratio := 1.0
	if depth > epsilon {
		ratio = math.Min(qty/depth, 1.0)
	}
	slippage := ratio * sizing.SlippageFactorPct

	priority := math.Min(math.Max(q.priority, 0), maxPriority)
	net := (gross - fees - slippage) * (1 + priority)

	return models.Opportunity{
		ProposalID:     proposalID(q.symbol, q.buy.Name, q.sell.Name, q.createdAt),
		Symbol:         q.symbol,
		BuyExchange:    q.buy.Name,
		SellExchange:   q.sell.Name,
		BuyPrice:       ask,
		SellPrice:      bid,
		GrossSpreadPct: gross,
		FeesTotalPct:   fees,
		SlippageEstPct: slippage,
		Priority:       priority,
		NetROIPct:      net,
		NetProfitUSD:   qty * net / 100,
		QtyUSD:         qty,
		TransferType:   transfer,
		LatencyMS:      q.latency.Milliseconds(),
		CreatedAt:      q.createdAt,
		Breakdown: models.Breakdown{
			Fees: models.FeeBreakdown{
				BuyTakerPct:    q.buy.TakerFeePct,
				SellTakerPct:   q.sell.TakerFeePct,
				TransferPct:    transferPct,
				TransferFeeUSD: transferFee,
			},
			Slippage: models.SlippageBreakdown{DepthUSD: depth, FactorPct: sizing.SlippageFactorPct},
			Transfer: models.TransferBreakdown{Type: transfer, FeeUSD: transferFee, ETASeconds: eta},
			Qty: models.QtyBreakdown{
				BaseUSD:    sizing.BaseQtyUSD,
				CapUSD:     capUSD,
				Volatility: sizing.VolatilityBySymbol[q.symbol],
				MinUSD:     sizing.QtyMinUSD,
				MaxUSD:     sizing.QtyMaxUSD,
			},
		},
		Meta: map[string]any{
			"buy_px_raw":      q.buyPx,
			"sell_px_raw":     q.sellPx,
			"buy_spread_bps":  buyBps,
			"sell_spread_bps": sellBps,
		},
	}, true
}
