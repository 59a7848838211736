package profit

import (
	"math"
	"sort"
	"strconv"
)

// MatchGroup pairs the buys of one ticker with later sells using the
// closest-price heuristic. It consumes RemainingQuantity on the records.
//
// Buys are processed earliest first. Sells are scanned highest price first,
// and for each buy the eligible sell whose price is nearest the buy price is
// taken; on a tie the first one in scan order wins. A sell is eligible when it
// has quantity left and executed strictly after the buy was created. Matching
// for a buy stops when it is filled or no eligible sell remains.
func MatchGroup(g *TickerGroup) []MatchedPair {
	sort.SliceStable(g.Buys, func(i, j int) bool {
		return createdBefore(g.Buys[i], g.Buys[j])
	})
	sort.SliceStable(g.Sells, func(i, j int) bool {
		return g.Sells[i].Price > g.Sells[j].Price
	})

	var pairs []MatchedPair

	for _, buy := range g.Buys {
		buyQty := buy.RemainingQuantity

		for buyQty > 0 && anyRemaining(g.Sells) {
			sell := closestEligible(buy, g.Sells)
			if sell == nil {
				break
			}

			matchQty := math.Min(buyQty, sell.RemainingQuantity)
			if matchQty <= 0 {
				break
			}

			gross := (sell.Price - buy.Price) * matchQty
			buyFees := buy.Fees * (matchQty / buy.Quantity)
			sellFees := sell.Fees * (matchQty / sell.Quantity)
			fees := buyFees + sellFees

			pairs = append(pairs, MatchedPair{
				BuyID:     buy.ID,
				SellID:    sell.ID,
				Quantity:  matchQty,
				BuyPrice:  buy.Price,
				SellPrice: sell.Price,
				Profit:    round2(gross - fees),
				Fees:      round2(fees),
			})

			buy.RemainingQuantity -= matchQty
			sell.RemainingQuantity -= matchQty
			buyQty -= matchQty
		}
	}

	return pairs
}

func closestEligible(buy *TradeRecord, sells []*TradeRecord) *TradeRecord {
	var best *TradeRecord
	var bestDiff float64
	for _, sell := range sells {
		if sell.RemainingQuantity <= 0 {
			continue
		}
		if !executedAfter(sell, buy) {
			continue
		}
		diff := math.Abs(sell.Price - buy.Price)
		if best == nil || diff < bestDiff {
			best = sell
			bestDiff = diff
		}
	}
	return best
}

func anyRemaining(records []*TradeRecord) bool {
	for _, r := range records {
		if r.RemainingQuantity > 0 {
			return true
		}
	}
	return false
}

// round2 rounds the exact binary value to cents, ties to even.
func round2(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return r
}
