package engine

import (
	"solar_forecast/internal/model"
	"solar_forecast/internal/solar"
)

// InverterGroup aggregates DC power across arrays sharing one physical
// inverter. The clipping model runs once on the summed DC against the group's
// derived input limit, then the clipped AC is allocated back to members by
// instantaneous DC share. Independent per-array clipping would overstate
// output whenever combined DC exceeds the shared ceiling even though no
// single array does.
type InverterGroup struct {
	ID      string
	Members []int // indices into the site's array slice
	arrays  []model.Array
}

// BuildGroups partitions a site's arrays into inverter groups, preserving
// first-appearance order. Arrays without a group id become singleton groups,
// so allocation has exactly one code path.
func BuildGroups(arrays []model.Array) []InverterGroup {
	var groups []InverterGroup
	byID := make(map[string]int)
	for i, arr := range arrays {
		if arr.InverterGroupID == "" {
			groups = append(groups, InverterGroup{ID: arr.ID, Members: []int{i}, arrays: arrays})
			continue
		}
		gi, ok := byID[arr.InverterGroupID]
		if !ok {
			byID[arr.InverterGroupID] = len(groups)
			groups = append(groups, InverterGroup{ID: arr.InverterGroupID, Members: []int{i}, arrays: arrays})
			continue
		}
		groups[gi].Members = append(groups[gi].Members, i)
	}
	return groups
}

// Pdc0W is the group's DC input limit: the sum of each member's explicit
// override when set, otherwise nameplate over DC/AC ratio.
func (g InverterGroup) Pdc0W() float64 {
	var sum float64
	for _, i := range g.Members {
		sum += g.arrays[i].GroupPdc0W()
	}
	return sum
}

// EtaInvNom returns the group's nominal inverter efficiency. When members
// disagree the maximum wins and mixed reports true so the run can flag it.
func (g InverterGroup) EtaInvNom() (eta float64, mixed bool) {
	for _, i := range g.Members {
		e := g.arrays[i].EtaInvNom
		if eta == 0 {
			eta = e
			continue
		}
		if e != eta {
			mixed = true
			if e > eta {
				eta = e
			}
		}
	}
	return eta, mixed
}

// Allocate computes per-member AC from per-member DC series. memberDC is
// indexed like Members. zeroGuarded counts samples where the summed DC was
// zero and the share division was skipped in favor of zero output.
func (g InverterGroup) Allocate(memberDC [][]float64) (memberAC [][]float64, groupAC []float64, zeroGuarded int) {
	n := 0
	if len(memberDC) > 0 {
		n = len(memberDC[0])
	}
	pdc0 := g.Pdc0W()
	eta, _ := g.EtaInvNom()

	groupAC = make([]float64, n)
	memberAC = make([][]float64, len(memberDC))
	for m := range memberDC {
		memberAC[m] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		var total float64
		for m := range memberDC {
			total += memberDC[m][i]
		}
		if total <= 0 {
			zeroGuarded++
			continue
		}
		ac := solar.PVWattsACPoint(total, pdc0, eta)
		groupAC[i] = ac
		for m := range memberDC {
			memberAC[m][i] = ac * memberDC[m][i] / total
		}
	}
	return memberAC, groupAC, zeroGuarded
}
