package tasks

import (
	"github.com/desertthunder/libsync/internal/models"
	"github.com/pmezard/go-difflib/difflib"
)

// maxLCSCells bounds the DP table; larger middles are aligned with difflib instead.
const maxLCSCells = 4_000_000

type editTag byte

const (
	tagEqual  editTag = '='
	tagDelete editTag = '-'
	tagInsert editTag = '+'
)

// edit is one step of an alignment between current (i) and matched (j).
type edit struct {
	tag editTag
	i   int
	j   int
}

// Plan computes the diff that brings current in line with matched.
//
// matched holds the accepted target ids in source order; duplicates only matter for ordered kinds.
func Plan(kind models.CollectionKind, matched []string, current *models.TargetCollection, policy models.MirrorPolicy) models.CollectionDiff {
	if kind.Ordered() {
		return PlanOrdered(kind, matched, current.IDs(), policy)
	}
	return PlanUnordered(kind, matched, current.IDs(), policy)
}

// PlanUnordered diffs two sets.
//
// Under [models.PolicyAdditive] the extra current ids land in Retained instead of ToRemove.
func PlanUnordered(kind models.CollectionKind, matched, current []string, policy models.MirrorPolicy) models.CollectionDiff {
	diff := models.CollectionDiff{Kind: kind}

	inCurrent := make(map[string]bool, len(current))
	for _, id := range current {
		inCurrent[id] = true
	}

	inMatched := make(map[string]bool, len(matched))
	for _, id := range matched {
		if inMatched[id] {
			continue
		}
		inMatched[id] = true
		if inCurrent[id] {
			diff.Unchanged = append(diff.Unchanged, id)
		} else {
			diff.ToAdd = append(diff.ToAdd, id)
		}
	}

	seen := make(map[string]bool, len(current))
	for _, id := range current {
		if inMatched[id] || seen[id] {
			continue
		}
		seen[id] = true
		if policy == models.PolicyAdditive {
			diff.Retained = append(diff.Retained, id)
		} else {
			diff.ToRemove = append(diff.ToRemove, id)
		}
	}
	return diff
}

// PlanOrdered computes an edit script from current to matched that keeps the longest common subsequence in place.
//
// Under [models.PolicyAdditive] no deletions are emitted: items that would have been deleted stay where they are
// and Script.Target includes them.
func PlanOrdered(kind models.CollectionKind, matched, current []string, policy models.MirrorPolicy) models.CollectionDiff {
	diff := models.CollectionDiff{Kind: kind}
	script := &models.EditScript{Target: make([]string, 0, len(matched))}

	for _, e := range align(current, matched) {
		switch e.tag {
		case tagEqual:
			script.Target = append(script.Target, current[e.i])
		case tagDelete:
			if policy == models.PolicyAdditive {
				script.Target = append(script.Target, current[e.i])
				diff.Retained = append(diff.Retained, current[e.i])
				continue
			}
			script.Deletions = append(script.Deletions, models.Deletion{Index: e.i, TargetID: current[e.i]})
		case tagInsert:
			script.Insertions = append(script.Insertions, models.Insertion{Position: len(script.Target), TargetID: matched[e.j]})
			script.Target = append(script.Target, matched[e.j])
		}
	}

	diff.Script = script
	return diff
}

// ApplyScript replays script against current: deletions by descending index, then insertions by ascending position.
func ApplyScript(current []string, script *models.EditScript) []string {
	out := append([]string(nil), current...)
	for k := len(script.Deletions) - 1; k >= 0; k-- {
		idx := script.Deletions[k].Index
		out = append(out[:idx], out[idx+1:]...)
	}
	for _, ins := range script.Insertions {
		out = append(out, "")
		copy(out[ins.Position+1:], out[ins.Position:])
		out[ins.Position] = ins.TargetID
	}
	return out
}

// align returns the edit steps turning a into b in order.
// Deletions come before insertions wherever both are possible.
func align(a, b []string) []edit {
	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix && a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	edits := make([]edit, 0, max(len(a), len(b)))
	for k := range prefix {
		edits = append(edits, edit{tag: tagEqual, i: k, j: k})
	}

	midA := a[prefix : len(a)-suffix]
	midB := b[prefix : len(b)-suffix]
	var middle []edit
	if len(midA)*len(midB) > maxLCSCells {
		middle = alignDifflib(midA, midB)
	} else {
		middle = alignLCS(midA, midB)
	}
	for _, e := range middle {
		edits = append(edits, edit{tag: e.tag, i: e.i + prefix, j: e.j + prefix})
	}

	for k := range suffix {
		edits = append(edits, edit{tag: tagEqual, i: len(a) - suffix + k, j: len(b) - suffix + k})
	}
	return edits
}

func alignLCS(a, b []string) []edit {
	n, m := len(a), len(b)
	// lcs[i][j] is the LCS length of a[i:] and b[j:].
	width := m + 1
	lcs := make([]int32, (n+1)*width)
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i*width+j] = lcs[(i+1)*width+j+1] + 1
			} else {
				lcs[i*width+j] = max(lcs[(i+1)*width+j], lcs[i*width+j+1])
			}
		}
	}

	edits := make([]edit, 0, max(n, m))
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			edits = append(edits, edit{tag: tagEqual, i: i, j: j})
			i++
			j++
		case lcs[(i+1)*width+j] >= lcs[i*width+j+1]:
			edits = append(edits, edit{tag: tagDelete, i: i, j: j})
			i++
		default:
			edits = append(edits, edit{tag: tagInsert, i: i, j: j})
			j++
		}
	}
	for ; i < n; i++ {
		edits = append(edits, edit{tag: tagDelete, i: i, j: j})
	}
	for ; j < m; j++ {
		edits = append(edits, edit{tag: tagInsert, i: i, j: j})
	}
	return edits
}

func alignDifflib(a, b []string) []edit {
	var edits []edit
	matcher := difflib.NewMatcherWithJunk(a, b, false, nil)
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for k := 0; k < op.I2-op.I1; k++ {
				edits = append(edits, edit{tag: tagEqual, i: op.I1 + k, j: op.J1 + k})
			}
		case 'd', 'r', 'i':
			for i := op.I1; i < op.I2; i++ {
				edits = append(edits, edit{tag: tagDelete, i: i, j: op.J1})
			}
			for j := op.J1; j < op.J2; j++ {
				edits = append(edits, edit{tag: tagInsert, i: op.I2, j: j})
			}
		}
	}
	return edits
}
