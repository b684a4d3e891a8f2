package solver

import (
	"context"
	"fmt"
	"math"
	"math/big"
)

// maxPropagationPasses bounds the fixpoint loop at a single node. Chains of
// constraints over wide domains can otherwise tighten by one unit per pass.
const maxPropagationPasses = 64

// deadlineCheckEvery is how many nodes are expanded between context checks.
const deadlineCheckEvery = 128

// row is a normalized constraint: sum(terms) <= rhs.
type row struct {
	terms []Term
	rhs   int64
}

// BranchAndBound is the built-in exact Oracle. It runs bounds propagation to
// a fixpoint at every node and branches by bisecting the narrowest open
// domain. Each improving solution adds an objective cut, so an exhausted
// search proves optimality or infeasibility.
type BranchAndBound struct {
	// NodeLimit stops the search after this many nodes. Zero means no limit.
	NodeLimit int64
}

type node struct {
	lo []int64
	hi []int64
}

func (b *BranchAndBound) Solve(ctx context.Context, f Formulation) (OracleResult, error) {
	if detail := checkFormulation(f); detail != "" {
		return OracleResult{Status: OracleModelInvalid, Detail: detail}, nil
	}
	rows, err := normalize(f.Constraints)
	if err != nil {
		return OracleResult{Status: OracleModelInvalid, Detail: err.Error()}, nil
	}
	// The search always minimizes.
	obj := make([]Term, len(f.Objective.Terms))
	for i, t := range f.Objective.Terms {
		c := t.Coeff
		if f.Objective.Maximize {
			if c == math.MinInt64 {
				return OracleResult{Status: OracleModelInvalid, Detail: "objective coefficient cannot be negated"}, nil
			}
			c = -c
		}
		obj[i] = Term{Var: t.Var, Coeff: c}
	}
	objCoeff := make([]int64, len(f.Vars))
	for _, t := range obj {
		objCoeff[t.Var] = t.Coeff
	}

	root := node{lo: make([]int64, len(f.Vars)), hi: make([]int64, len(f.Vars))}
	for i, v := range f.Vars {
		root.lo[i], root.hi[i] = v.Lo, v.Hi
	}

	var (
		best      []int64
		bestScore int64
		bestValue int64
		overflow  bool
		nodes     int64
		stack     = []node{root}
	)

	for len(stack) > 0 {
		if nodes%deadlineCheckEvery == 0 && ctx.Err() != nil {
			return timedOut(best, bestValue, "time budget exhausted"), nil
		}
		if b.NodeLimit > 0 && nodes >= b.NodeLimit {
			return timedOut(best, bestValue, "node limit reached"), nil
		}
		nodes++

		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		active := rows
		if best != nil {
			if bestScore == math.MinInt64 {
				break
			}
			active = append(rows[:len(rows):len(rows)], row{terms: obj, rhs: bestScore - 1})
		}
		if !propagate(n.lo, n.hi, active) {
			continue
		}

		v := branchVariable(n.lo, n.hi)
		if v < 0 {
			if !satisfies(n.lo, rows) {
				continue
			}
			score, ok := evaluate(n.lo, obj, 0)
			if !ok {
				overflow = true
				continue
			}
			value, ok := evaluate(n.lo, f.Objective.Terms, f.Objective.Constant)
			if !ok {
				overflow = true
				continue
			}
			if best == nil || score < bestScore {
				best = append([]int64(nil), n.lo...)
				bestScore, bestValue = score, value
			}
			continue
		}

		mid := midpoint(n.lo[v], n.hi[v])
		low := n.clone()
		low.hi[v] = mid
		high := n
		high.lo = append([]int64(nil), n.lo...)
		high.lo[v] = mid + 1
		// Explore first the half that the objective favours.
		if objCoeff[v] < 0 {
			stack = append(stack, low, high)
		} else {
			stack = append(stack, high, low)
		}
	}

	if best != nil {
		return OracleResult{Status: OracleOptimal, Objective: bestValue, Values: best}, nil
	}
	if overflow {
		return OracleResult{Status: OracleModelInvalid, Detail: "objective value overflows int64"}, nil
	}
	return OracleResult{Status: OracleInfeasible}, nil
}

func (n node) clone() node {
	return node{lo: append([]int64(nil), n.lo...), hi: append([]int64(nil), n.hi...)}
}

func timedOut(best []int64, value int64, detail string) OracleResult {
	if best != nil {
		return OracleResult{Status: OracleFeasible, Objective: value, Values: best, Detail: detail}
	}
	return OracleResult{Status: OracleUnknown, Detail: detail}
}

func checkFormulation(f Formulation) string {
	for i, v := range f.Vars {
		if v.Lo > v.Hi {
			return fmt.Sprintf("variable %d (%s) has empty domain [%d, %d]", i, v.Name, v.Lo, v.Hi)
		}
	}
	check := func(where string, terms []Term) string {
		for _, t := range terms {
			if t.Var < 0 || t.Var >= len(f.Vars) {
				return fmt.Sprintf("%s references variable index %d of %d", where, t.Var, len(f.Vars))
			}
		}
		return ""
	}
	for i, c := range f.Constraints {
		if d := check(fmt.Sprintf("constraint %d", i), c.Terms); d != "" {
			return d
		}
	}
	return check("objective", f.Objective.Terms)
}

func normalize(cons []LinearConstraint) ([]row, error) {
	rows := make([]row, 0, len(cons))
	for i, c := range cons {
		switch c.Rel {
		case RelLE:
			rows = append(rows, row{terms: c.Terms, rhs: c.RHS})
		case RelGE:
			r, err := negated(c)
			if err != nil {
				return nil, fmt.Errorf("constraint %d: %w", i, err)
			}
			rows = append(rows, r)
		case RelEQ:
			r, err := negated(c)
			if err != nil {
				return nil, fmt.Errorf("constraint %d: %w", i, err)
			}
			rows = append(rows, row{terms: c.Terms, rhs: c.RHS}, r)
		default:
			return nil, fmt.Errorf("constraint %d: %w: %s", i, ErrUnsupportedOperator, c.Rel)
		}
	}
	return rows, nil
}

func negated(c LinearConstraint) (row, error) {
	if c.RHS == math.MinInt64 {
		return row{}, fmt.Errorf("right-hand side cannot be negated")
	}
	terms := make([]Term, len(c.Terms))
	for i, t := range c.Terms {
		if t.Coeff == math.MinInt64 {
			return row{}, fmt.Errorf("coefficient cannot be negated")
		}
		terms[i] = Term{Var: t.Var, Coeff: -t.Coeff}
	}
	return row{terms: terms, rhs: -c.RHS}, nil
}

// propagate tightens lo/hi in place until no row changes a bound. It reports
// false when some row cannot be satisfied within the current domains. Rows
// whose activity overflows int64 are skipped here and checked exactly at
// the leaves.
func propagate(lo, hi []int64, rows []row) bool {
	for pass := 0; pass < maxPropagationPasses; pass++ {
		changed := false
		for _, r := range rows {
			minAct, ok := minActivity(lo, hi, r.terms)
			if !ok {
				continue
			}
			if minAct > r.rhs {
				return false
			}
			for _, t := range r.terms {
				if t.Coeff == 0 {
					continue
				}
				own, _ := contribution(lo, hi, t)
				rest, ok := subChecked(minAct, own)
				if !ok {
					continue
				}
				slack, ok := subChecked(r.rhs, rest)
				if !ok {
					continue
				}
				if t.Coeff > 0 {
					if nh := floorDiv(slack, t.Coeff); nh < hi[t.Var] {
						hi[t.Var] = nh
						changed = true
					}
				} else {
					if nl := ceilDiv(slack, t.Coeff); nl > lo[t.Var] {
						lo[t.Var] = nl
						changed = true
					}
				}
				if lo[t.Var] > hi[t.Var] {
					return false
				}
			}
		}
		if !changed {
			break
		}
	}
	return true
}

func contribution(lo, hi []int64, t Term) (int64, bool) {
	if t.Coeff > 0 {
		return mulChecked(t.Coeff, lo[t.Var])
	}
	return mulChecked(t.Coeff, hi[t.Var])
}

func minActivity(lo, hi []int64, terms []Term) (int64, bool) {
	var sum int64
	for _, t := range terms {
		c, ok := contribution(lo, hi, t)
		if !ok {
			return 0, false
		}
		if sum, ok = addChecked(sum, c); !ok {
			return 0, false
		}
	}
	return sum, true
}

// branchVariable picks the open variable with the narrowest domain, lowest
// index first on ties, or -1 when every variable is fixed.
func branchVariable(lo, hi []int64) int {
	pick := -1
	var narrowest uint64
	for i := range lo {
		w := width(lo[i], hi[i])
		if w == 0 {
			continue
		}
		if pick < 0 || w < narrowest {
			pick, narrowest = i, w
		}
	}
	return pick
}

func satisfies(values []int64, rows []row) bool {
	for _, r := range rows {
		sum := new(big.Int)
		for _, t := range r.terms {
			sum.Add(sum, new(big.Int).Mul(big.NewInt(t.Coeff), big.NewInt(values[t.Var])))
		}
		if sum.Cmp(big.NewInt(r.rhs)) > 0 {
			return false
		}
	}
	return true
}

func evaluate(values []int64, terms []Term, constant int64) (int64, bool) {
	sum := big.NewInt(constant)
	for _, t := range terms {
		sum.Add(sum, new(big.Int).Mul(big.NewInt(t.Coeff), big.NewInt(values[t.Var])))
	}
	if !sum.IsInt64() {
		return 0, false
	}
	return sum.Int64(), true
}
