package dashboard

import (
	"context"
	"fmt"
	"strings"

	"finboard/internal/core"
	"finboard/internal/gateway"
)

// GoalView is a goal with its progress toward the target.
type GoalView struct {
	gateway.Goal
	Progress float64
}

func (d *Dashboard) Goals(ctx context.Context) ([]GoalView, error) {
	goals, err := d.api.ListGoals(ctx)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	out := make([]GoalView, 0, len(goals))
	for _, g := range goals {
		out = append(out, GoalView{Goal: g, Progress: g.Progress()})
	}
	return out, nil
}

func (d *Dashboard) CreateGoal(ctx context.Context, in gateway.GoalInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return &core.ValidationError{Field: "name", Message: "goal name is required"}
	}
	if in.Target <= 0 {
		return &core.ValidationError{Field: "target", Message: "target must be greater than zero"}
	}
	if in.Current < 0 {
		return &core.ValidationError{Field: "current", Message: "current cannot be negative"}
	}
	if err := d.api.CreateGoal(ctx, in); err != nil {
		return fmt.Errorf("create goal: %w", err)
	}
	return nil
}

func (d *Dashboard) UpdateGoal(ctx context.Context, id string, in gateway.GoalUpdate) error {
	if in.Target != nil && *in.Target <= 0 {
		return &core.ValidationError{Field: "target", Message: "target must be greater than zero"}
	}
	if in.Current != nil && *in.Current < 0 {
		return &core.ValidationError{Field: "current", Message: "current cannot be negative"}
	}
	if err := d.api.UpdateGoal(ctx, id, in); err != nil {
		return fmt.Errorf("update goal %s: %w", id, err)
	}
	return nil
}

func (d *Dashboard) DeleteGoal(ctx context.Context, id string) error {
	if err := d.api.DeleteGoal(ctx, id); err != nil {
		return fmt.Errorf("delete goal %s: %w", id, err)
	}
	return nil
}

// GoalSuggestions asks for advice on reaching a goal given the current
// income, which must be valid.
func (d *Dashboard) GoalSuggestions(ctx context.Context, id string) (string, error) {
	income, err := core.ParseIncome(d.state.Snapshot().Income)
	if err != nil {
		return "", err
	}
	s, err := d.api.GoalSuggestions(ctx, id, income)
	if err != nil {
		return "", fmt.Errorf("goal suggestions: %w", err)
	}
	return s, nil
}
