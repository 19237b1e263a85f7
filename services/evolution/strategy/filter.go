// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package strategy

import "sort"

// FilterProposals drops proposals below the confidence floor or above
// the risk ceiling, then ranks survivors by confidence (descending).
// The sort is stable, so proposals with equal confidence keep their
// original relative order.
//
// Inputs:
//
//	proposals - Candidate proposals, order-significant on ties
//	minConfidence - Inclusive confidence floor in [0, 1]
//	maxRisk - Inclusive risk ceiling
//
// Outputs:
//
//	[]*Proposal - Filtered, ranked proposals (possibly empty, never nil)
func FilterProposals(proposals []*Proposal, minConfidence float64, maxRisk RiskLevel) []*Proposal {
	ceiling := maxRisk.Rank()
	kept := make([]*Proposal, 0, len(proposals))
	for _, p := range proposals {
		if p == nil || len(p.Mutations) == 0 {
			continue
		}
		if p.Confidence < minConfidence {
			continue
		}
		if p.Risk.Rank() > ceiling {
			continue
		}
		kept = append(kept, p)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Confidence > kept[j].Confidence
	})
	return kept
}
