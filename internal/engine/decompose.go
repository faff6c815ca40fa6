package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"goalforge/internal/extract"
	"goalforge/internal/gateway"
	"goalforge/internal/logging"
	"goalforge/internal/plan"
)

const decomposePrompt = `Identify the conditional elements in the statement below: the distinct
people, resources, deadlines, approvals, or facts the statement depends on.
Return the statement verbatim with each conditional element wrapped in
<ce>...</ce> tags. Do not change any other text.

Statement: `

const classifyPrompt = `Classify each conditional element below into exactly one of these types:
%s

Reply with a JSON array of type names, one per element, in the same order.

Elements:
%s`

// DecomposeCOS asks the model to mark the conditional elements inside a COS
// statement. Each tagged span becomes an unclassified CE and an id-carrying
// tag is spliced into the ORIGINAL statement, so prose the model wraps around
// its reply never reaches stored content. Spans whose text does not occur in
// the statement are skipped. Model failure or a tagless reply degrades to the
// original content with no CEs; this method never fails the pipeline.
func (e *Engine) DecomposeCOS(ctx context.Context, content string) (string, []plan.CE) {
	turns := []gateway.Turn{
		{Role: gateway.RoleUser, Content: decomposePrompt + content},
	}
	reply, err := e.gen.Generate(ctx, turns, gateway.GenerationOptions{Temperature: 0.3})
	if err != nil {
		logging.EngineWarn("decomposition failed, keeping original content: %v", err)
		return content, nil
	}

	spans := extract.Tags(reply)
	if len(spans) == 0 {
		logging.EngineDebug("no conditional elements tagged in %q", content)
		return content, nil
	}

	var out strings.Builder
	rest := content
	var ces []plan.CE
	for _, span := range spans {
		inner := strings.TrimSpace(span.Inner)
		if inner == "" {
			continue
		}
		idx := strings.Index(rest, inner)
		if idx < 0 {
			logging.EngineDebug("tagged span %q not found in statement, skipped", inner)
			continue
		}
		ce := plan.NewCE("", inner)
		ces = append(ces, ce)
		out.WriteString(rest[:idx])
		fmt.Fprintf(&out, `<ce id=%q>%s</ce>`, ce.ID, inner)
		rest = rest[idx+len(inner):]
	}
	if len(ces) == 0 {
		return content, nil
	}
	out.WriteString(rest)
	logging.EngineDebug("decomposed %d conditional elements from %q", len(ces), content)
	return out.String(), ces
}

// ClassifyCEs resolves a taxonomy type for each CE in one model call.
// Proposals that miss the catalog, and the whole batch when the call or the
// payload fails, leave the type at "Unknown".
func (e *Engine) ClassifyCEs(ctx context.Context, ces []plan.CE) []plan.CE {
	if len(ces) == 0 {
		return ces
	}

	var elements strings.Builder
	for i, ce := range ces {
		fmt.Fprintf(&elements, "%d. %s\n", i+1, ce.Content)
	}
	prompt := fmt.Sprintf(classifyPrompt,
		strings.Join(e.catalog.Names(), ", "), elements.String())

	turns := []gateway.Turn{
		{Role: gateway.RoleUser, Content: prompt},
	}
	reply, err := e.gen.Generate(ctx, turns, gateway.GenerationOptions{Temperature: 0.2})
	if err != nil {
		logging.EngineWarn("CE classification failed, keeping Unknown types: %v", err)
		return ces
	}

	var proposals []string
	if err := json.Unmarshal([]byte(extract.Payload(reply)), &proposals); err != nil {
		logging.EngineWarn("classification payload unparsable: %v", err)
		return ces
	}
	if len(proposals) != len(ces) {
		logging.EngineWarn("classification returned %d types for %d elements", len(proposals), len(ces))
		return ces
	}

	for i, name := range proposals {
		res := e.catalog.Lookup(name)
		if res.Fallback {
			logging.EngineDebug("unknown CE type %q for %q", name, ces[i].Content)
			continue
		}
		ces[i].CEType = res.Type.Name
	}
	return ces
}
