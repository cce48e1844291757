package rollup

import (
	"context"

	"beehive/internal/domain/matrix"
	"beehive/internal/domain/reward"
)

// Search strategy names, recorded on traces and logs
const (
	strategySameMatrix  = "same_matrix"
	strategyCrossMatrix = "cross_matrix"
	strategyGlobal      = "global_fallback"
	strategyPlatform    = "platform"
)

// resolution is the outcome of a rollup recipient search
type resolution struct {
	Wallet         string
	Layer          int
	MatrixRoot     string
	RecipientLevel int
	Strategy       string
	Path           reward.Path
}

// Resolved reports whether the search reached a real member
func (r *resolution) Resolved() bool {
	return r.Wallet != reward.PlatformWallet
}

// findRollupRecipient searches for the next recipient of an expired reward
// in strict priority order: shallower layers of the same matrix, then other
// matrices of the triggering member, then any qualified member platform
// wide. When all three strategies fail the amount falls to the platform.
//
// The level gate checks present-day level against the record's required
// level, unlike distribution time, which froze the level at creation.
func (s *Service) findRollupRecipient(ctx context.Context, rec *reward.Record) *resolution {
	var path reward.Path
	path = append(path, reward.PathStep{
		Wallet: rec.RecipientWallet,
		Layer:  rec.LayerNumber,
		Reason: "expired",
	})

	if res := s.searchSameMatrix(ctx, rec, &path); res != nil {
		return res
	}
	if res := s.searchCrossMatrix(ctx, rec, &path); res != nil {
		return res
	}
	if res := s.searchGlobal(ctx, rec, &path); res != nil {
		return res
	}

	path = append(path, reward.PathStep{
		Wallet: reward.PlatformWallet,
		Layer:  reward.GlobalFallbackLayer,
		Reason: "no_qualified_recipient",
	})
	return &resolution{
		Wallet:     reward.PlatformWallet,
		Layer:      reward.GlobalFallbackLayer,
		MatrixRoot: rec.MatrixRoot,
		Strategy:   strategyPlatform,
		Path:       path,
	}
}

// searchSameMatrix walks the ancestor layers of the original matrix from
// the trigger member's layer upward to layer 1, then the matrix root.
func (s *Service) searchSameMatrix(ctx context.Context, rec *reward.Record, path *reward.Path) *resolution {
	pos, err := s.matrices.GetPosition(ctx, rec.MatrixRoot, rec.TriggerWallet)
	if err != nil {
		s.log.Debugw("Trigger member position not found for rollup search",
			"matrix_root", rec.MatrixRoot,
			"trigger", rec.TriggerWallet,
			"error", err,
		)
		return nil
	}

	for layer := pos.Layer - 1; layer >= 1; layer-- {
		positions, err := s.matrices.GetLayerMembers(ctx, rec.MatrixRoot, layer)
		if err != nil {
			s.log.Errorf("Failed to read layer %d of matrix %s: %v", layer, rec.MatrixRoot, err)
			continue
		}
		for _, p := range positions {
			if res := s.tryCandidate(ctx, rec, p.MemberWallet, layer, rec.MatrixRoot, strategySameMatrix, path); res != nil {
				return res
			}
		}
	}

	return s.tryCandidate(ctx, rec, rec.MatrixRoot, reward.RootLayer, rec.MatrixRoot, strategySameMatrix, path)
}

// searchCrossMatrix inspects the other matrices the trigger member belongs
// to, roots first, then their ancestor layers above the member.
func (s *Service) searchCrossMatrix(ctx context.Context, rec *reward.Record, path *reward.Path) *resolution {
	memberships, err := s.matrices.GetMemberships(ctx, rec.TriggerWallet)
	if err != nil {
		s.log.Errorf("Failed to read memberships of %s: %v", rec.TriggerWallet, err)
		return nil
	}

	var others []*matrix.Position
	for _, pos := range memberships {
		if pos.MatrixRoot != rec.MatrixRoot {
			others = append(others, pos)
		}
	}
	if len(others) == 0 {
		return nil
	}

	// Roots that individually qualify win before any deeper candidate.
	for _, pos := range others {
		if res := s.tryCandidate(ctx, rec, pos.MatrixRoot, reward.RootLayer, pos.MatrixRoot, strategyCrossMatrix, path); res != nil {
			return res
		}
	}

	for _, pos := range others {
		for layer := pos.Layer - 1; layer >= 1; layer-- {
			positions, err := s.matrices.GetLayerMembers(ctx, pos.MatrixRoot, layer)
			if err != nil {
				s.log.Errorf("Failed to read layer %d of matrix %s: %v", layer, pos.MatrixRoot, err)
				continue
			}
			for _, p := range positions {
				if res := s.tryCandidate(ctx, rec, p.MemberWallet, layer, pos.MatrixRoot, strategyCrossMatrix, path); res != nil {
					return res
				}
			}
		}
	}

	return nil
}

// searchGlobal falls back to any qualified member on the platform, ordered
// by current level descending then team size descending.
func (s *Service) searchGlobal(ctx context.Context, rec *reward.Record, path *reward.Path) *resolution {
	candidates, err := s.members.FindQualified(ctx, rec.RequiresLevel, s.cfg.CrossMatrixCandidateLimit)
	if err != nil {
		s.log.Errorf("Failed to find qualified members: %v", err)
		return nil
	}

	for _, m := range candidates {
		if m.WalletAddress == rec.RecipientWallet || m.WalletAddress == rec.TriggerWallet {
			continue
		}
		*path = append(*path, reward.PathStep{
			Wallet: m.WalletAddress,
			Layer:  reward.GlobalFallbackLayer,
			Reason: "qualified",
		})
		return &resolution{
			Wallet:         m.WalletAddress,
			Layer:          reward.GlobalFallbackLayer,
			MatrixRoot:     rec.MatrixRoot,
			RecipientLevel: m.CurrentLevel,
			Strategy:       strategyGlobal,
			Path:           *path,
		}
	}

	return nil
}

// tryCandidate checks one wallet against the record's level requirement and
// appends the examined hop to the path either way. The failed original
// recipient and the trigger member themselves are never candidates.
func (s *Service) tryCandidate(ctx context.Context, rec *reward.Record, wallet string, layer int, matrixRoot, strategy string, path *reward.Path) *resolution {
	if wallet == rec.RecipientWallet || wallet == rec.TriggerWallet {
		return nil
	}

	m, err := s.members.GetByWallet(ctx, wallet)
	if err != nil {
		s.log.Debugw("Candidate lookup failed", "wallet", wallet, "error", err)
		return nil
	}

	if !m.Qualifies(rec.RequiresLevel) {
		*path = append(*path, reward.PathStep{
			Wallet: wallet,
			Layer:  layer,
			Reason: "level_insufficient",
		})
		return nil
	}

	*path = append(*path, reward.PathStep{
		Wallet: wallet,
		Layer:  layer,
		Reason: "qualified",
	})
	return &resolution{
		Wallet:         wallet,
		Layer:          layer,
		MatrixRoot:     matrixRoot,
		RecipientLevel: m.CurrentLevel,
		Strategy:       strategy,
		Path:           *path,
	}
}
