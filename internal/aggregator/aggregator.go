// Package aggregator reduces a cycle's scored submissions into
// normalized per-miner weights. It is pure: no I/O, no store or
// network dependency.
package aggregator

import "sort"

const MaxU16 = 65535

// MinerTotals is the raw per-miner input: every final score a miner's
// SCORED submissions received in a cycle, plus how many submissions
// (scored or not) it made in total.
type MinerTotals struct {
	MinerUID         int64
	Scores           []float64
	TotalSubmissions int64
}

// MinerResult is one miner's contribution to the aggregate output: its
// weight (0-1, sums to 1 across all miners), its u16 projection, and
// the score breakdown that backs GET /v1/scores.
type MinerResult struct {
	MinerUID            int64
	Weight              float64
	WeightU16           int
	TotalSubmissions    int64
	AcceptedSubmissions int64
	AvgScore            float64
	TotalScore          float64
}

// Compute reduces per-miner score lists into normalized weights. Miners
// with no scored submissions in the cycle contribute no weight but are
// not otherwise penalized; an empty input returns an empty result,
// never an error.
func Compute(inputs []MinerTotals) []MinerResult {
	type accum struct {
		MinerTotals
		total float64
	}
	var accs []accum
	var grandTotal float64
	for _, in := range inputs {
		var total float64
		for _, sc := range in.Scores {
			total += sc
		}
		accs = append(accs, accum{MinerTotals: in, total: total})
		grandTotal += total
	}

	results := make([]MinerResult, len(accs))
	for i, a := range accs {
		var avg float64
		accepted := int64(len(a.Scores))
		if accepted > 0 {
			avg = a.total / float64(accepted)
		}
		var weight float64
		if grandTotal > 0 {
			weight = a.total / grandTotal
		}
		results[i] = MinerResult{
			MinerUID:            a.MinerUID,
			Weight:              weight,
			TotalSubmissions:    a.TotalSubmissions,
			AcceptedSubmissions: accepted,
			AvgScore:            avg,
			TotalScore:          a.total,
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].MinerUID < results[j].MinerUID })
	applyU16(results)
	return results
}

// applyU16 projects each result's float weight onto the u16 space so
// the values sum to exactly MaxU16, using largest-remainder
// rounding: floor every weight, then hand the leftover units one at a
// time to the largest fractional remainders, breaking ties by
// miner_uid ascending for determinism.
func applyU16(results []MinerResult) {
	if len(results) == 0 {
		return
	}
	var anyWeight bool
	for _, r := range results {
		if r.Weight > 0 {
			anyWeight = true
			break
		}
	}
	if !anyWeight {
		return
	}
	type remainder struct {
		index int
		frac  float64
	}
	floors := make([]int, len(results))
	remainders := make([]remainder, len(results))
	var sumFloors int
	for i, r := range results {
		scaled := r.Weight * float64(MaxU16)
		floor := int(scaled)
		floors[i] = floor
		remainders[i] = remainder{index: i, frac: scaled - float64(floor)}
		sumFloors += floor
	}

	shortfall := MaxU16 - sumFloors
	sort.SliceStable(remainders, func(i, j int) bool {
		if remainders[i].frac != remainders[j].frac {
			return remainders[i].frac > remainders[j].frac
		}
		return results[remainders[i].index].MinerUID < results[remainders[j].index].MinerUID
	})
	for i := 0; i < shortfall && i < len(remainders); i++ {
		floors[remainders[i].index]++
	}

	for i := range results {
		results[i].WeightU16 = floors[i]
	}
}
