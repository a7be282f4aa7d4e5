package validate

import (
	"fmt"
	"strings"

	"github.com/novakit/nova/metadata"
)

// maxReferenceDepth bounds the reference chain walk.
const maxReferenceDepth = 10

// CheckCircularReferences walks the parent-file and attachment edges
// from a snapshot, reporting cycles and over-deep chains. Each child
// branch receives its own copy of the visited set: only ancestor
// chains count as cycles, siblings never poison each other.
func (v *Validator) CheckCircularReferences(snap *metadata.Snapshot) []string {
	if snap == nil {
		return nil
	}
	return v.walkChain(snap, map[string]struct{}{}, nil, 0)
}

func (v *Validator) walkChain(snap *metadata.Snapshot, visited map[string]struct{}, chain []string, depth int) []string {
	chain = append(chain, snap.FilePath)

	if depth > maxReferenceDepth {
		return []string{fmt.Sprintf(
			"reference chain too deep (depth %d): %s", depth, strings.Join(chain, " -> "))}
	}
	if _, seen := visited[snap.FilePath]; seen {
		return []string{fmt.Sprintf(
			"circular reference: %s", strings.Join(chain, " -> "))}
	}

	var findings []string
	for _, target := range chainTargets(snap) {
		child := v.lookup(target)
		if child == nil {
			continue
		}
		branch := make(map[string]struct{}, len(visited)+1)
		for f := range visited {
			branch[f] = struct{}{}
		}
		branch[snap.FilePath] = struct{}{}
		findings = append(findings, v.walkChain(child, branch, chain, depth+1)...)
	}
	return findings
}

// chainTargets returns the outgoing edges of a snapshot.
func chainTargets(snap *metadata.Snapshot) []string {
	var targets []string
	if snap.ParentFile != "" {
		targets = append(targets, snap.ParentFile)
	}
	targets = append(targets, snap.Attachments...)
	return targets
}
