package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/hously/internal/geo"
	"github.com/mohammad-safakhou/hously/internal/telemetry"
	"github.com/mohammad-safakhou/hously/internal/turn"
)

// Sentinel markers for location tool output.
const (
	markerGeoNoResults = "[NO_RESULTS]"
	markerGeoError     = "[ERROR]"
)

// CommuteTool answers travel-time questions between two places.
type CommuteTool struct {
	client *geo.Client
}

func NewCommuteTool(client *geo.Client) *CommuteTool {
	return &CommuteTool{client: client}
}

func (t *CommuteTool) Name() string { return "commute_info" }

func (t *CommuteTool) Spec() string {
	return `commute_info(origin string, destination string, mode string): travel time and distance between two places; mode is driving, transit, walking or bicycling`
}

func (t *CommuteTool) Invoke(ctx context.Context, args map[string]interface{}) (turn.ToolOutput, error) {
	origin, destination := stringArg(args, "origin"), stringArg(args, "destination")
	if origin == "" || destination == "" {
		return turn.ToolOutput{}, fmt.Errorf("commute_info: origin and destination are required")
	}
	route, err := t.client.Commute(ctx, origin, destination, stringArg(args, "mode"))
	if out, done := geoFailure(t.Name(), err); done {
		return out, nil
	}
	telemetry.ToolInvocations.WithLabelValues(t.Name(), "ok").Inc()
	return turn.ToolOutput{
		Content: fmt.Sprintf("%s to %s by %s: %s, about %s.",
			route.Origin, route.Destination, route.Mode, route.Distance, route.Duration),
		Citations: []string{"google-maps"},
	}, nil
}

// DirectionsTool returns step-by-step directions between two places.
type DirectionsTool struct {
	client *geo.Client
}

func NewDirectionsTool(client *geo.Client) *DirectionsTool {
	return &DirectionsTool{client: client}
}

func (t *DirectionsTool) Name() string { return "directions" }

func (t *DirectionsTool) Spec() string {
	return `directions(origin string, destination string, mode string): step-by-step route between two places`
}

func (t *DirectionsTool) Invoke(ctx context.Context, args map[string]interface{}) (turn.ToolOutput, error) {
	origin, destination := stringArg(args, "origin"), stringArg(args, "destination")
	if origin == "" || destination == "" {
		return turn.ToolOutput{}, fmt.Errorf("directions: origin and destination are required")
	}
	route, err := t.client.Directions(ctx, origin, destination, stringArg(args, "mode"))
	if out, done := geoFailure(t.Name(), err); done {
		return out, nil
	}
	telemetry.ToolInvocations.WithLabelValues(t.Name(), "ok").Inc()

	var b strings.Builder
	fmt.Fprintf(&b, "%s to %s by %s (%s, %s):\n", route.Origin, route.Destination, route.Mode, route.Distance, route.Duration)
	for i, step := range route.Steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	return turn.ToolOutput{Content: strings.TrimSpace(b.String()), Citations: []string{"google-maps"}}, nil
}

// NearbyTool lists amenities around a place.
type NearbyTool struct {
	client *geo.Client
}

func NewNearbyTool(client *geo.Client) *NearbyTool {
	return &NearbyTool{client: client}
}

func (t *NearbyTool) Name() string { return "search_nearby" }

func (t *NearbyTool) Spec() string {
	return `search_nearby(place string, keyword string): amenities matching a keyword around a place, e.g. schools, hawker centres, MRT stations`
}

func (t *NearbyTool) Invoke(ctx context.Context, args map[string]interface{}) (turn.ToolOutput, error) {
	place, keyword := stringArg(args, "place"), stringArg(args, "keyword")
	if place == "" || keyword == "" {
		return turn.ToolOutput{}, fmt.Errorf("search_nearby: place and keyword are required")
	}
	places, err := t.client.Nearby(ctx, place, keyword)
	if out, done := geoFailure(t.Name(), err); done {
		return out, nil
	}
	telemetry.ToolInvocations.WithLabelValues(t.Name(), "ok").Inc()

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d places matching %q near %s:\n", len(places), keyword, place)
	for _, p := range places {
		fmt.Fprintf(&b, "- %s (%s)", p.Name, p.Address)
		if p.Rating > 0 {
			fmt.Fprintf(&b, ", rated %.1f", p.Rating)
		}
		b.WriteByte('\n')
	}
	return turn.ToolOutput{Content: strings.TrimSpace(b.String()), Citations: []string{"google-maps"}}, nil
}

// geoFailure translates client errors into sentinel output the model can act
// on. The bool reports whether the caller should return immediately.
func geoFailure(tool string, err error) (turn.ToolOutput, bool) {
	if err == nil {
		return turn.ToolOutput{}, false
	}
	if errors.Is(err, geo.ErrNoResults) {
		telemetry.ToolInvocations.WithLabelValues(tool, "empty").Inc()
		return turn.ToolOutput{Content: markerGeoNoResults, NoResults: true}, true
	}
	telemetry.ToolInvocations.WithLabelValues(tool, "error").Inc()
	return turn.ToolOutput{Content: markerGeoError + " " + err.Error(), NoResults: true}, true
}
