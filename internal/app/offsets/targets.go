package offsets

import (
	"context"
	"fmt"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

// computeTargets resolves the offsets a reset commits for one group. Every
// target lands inside the partition's retained range [low, high].
func computeTargets(ctx context.Context, admin repository.Admin, req *domain.OffsetResetRequest, mapping *domain.OffsetMapping, group string) (domain.GroupOffsets, error) {
	if req.Strategy == domain.ResetFromMapping {
		return mappedTargets(ctx, admin, req, mapping, group)
	}

	targets := make(domain.GroupOffsets)
	for _, topic := range req.Topics {
		partitions, err := admin.GetPartitions(ctx, topic)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return nil, apperrors.Configuration("topic %s not found", topic)
			}
			return nil, fmt.Errorf("failed to list partitions of %s: %w", topic, err)
		}
		for _, p := range partitions {
			low, high, err := admin.GetOffsets(ctx, topic, p)
			if err != nil {
				return nil, fmt.Errorf("failed to get offsets of %s/%d: %w", topic, p, err)
			}
			target, err := strategyTarget(ctx, admin, req, topic, p, low, high)
			if err != nil {
				return nil, err
			}
			targets.Set(topic, p, target)
		}
	}
	return targets, nil
}

func strategyTarget(ctx context.Context, admin repository.Admin, req *domain.OffsetResetRequest, topic string, p int32, low, high int64) (int64, error) {
	switch req.Strategy {
	case domain.ResetToEarliest:
		return low, nil
	case domain.ResetToLatest:
		return high, nil
	case domain.ResetToOffset:
		return clamp(*req.Offset, low, high), nil
	case domain.ResetToTimestamp:
		off, err := admin.GetOffsetForTime(ctx, topic, p, *req.Timestamp)
		if err != nil {
			return 0, fmt.Errorf("failed to look up offset for time on %s/%d: %w", topic, p, err)
		}
		// -1: every retained record is older than the timestamp
		if off < 0 {
			return high, nil
		}
		return clamp(off, low, high), nil
	default:
		return 0, apperrors.Configuration("unsupported reset strategy %q", req.Strategy)
	}
}

// mappedTargets translates the group's backed-up offsets through the
// mapping a restore wrote.
func mappedTargets(ctx context.Context, admin repository.Admin, req *domain.OffsetResetRequest, mapping *domain.OffsetMapping, group string) (domain.GroupOffsets, error) {
	if _, ok := mapping.GroupOffsets[group]; !ok {
		return nil, apperrors.Configuration("consumer group %s has no offsets in mapping %s", group, mapping.RestoreID)
	}

	var only map[string]bool
	if len(req.Topics) > 0 {
		only = make(map[string]bool, len(req.Topics))
		for _, t := range req.Topics {
			only[t] = true
		}
	}

	translated := mapping.TranslateGroup(group)
	targets := make(domain.GroupOffsets)
	for topic, parts := range translated {
		if only != nil && !only[topic] {
			continue
		}
		for p, off := range parts {
			low, high, err := admin.GetOffsets(ctx, topic, p)
			if err != nil {
				return nil, fmt.Errorf("failed to get offsets of %s/%d: %w", topic, p, err)
			}
			targets.Set(topic, p, clamp(off, low, high))
		}
	}
	return targets, nil
}

func clamp(off, low, high int64) int64 {
	if off < low {
		return low
	}
	if off > high {
		return high
	}
	return off
}
