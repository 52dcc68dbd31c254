package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/alfredjeanlab/mcpgate/internal/model"
)

// Local tool names.
const (
	ToolGetProfile    = "get_company_profile"
	ToolUpdateProfile = "update_company_profile"
	ToolDeleteProfile = "delete_company_profile"
	ToolListProfiles  = "list_company_profiles"
)

type localHandler func(ctx context.Context, args map[string]any) *model.ToolResult

type localTool struct {
	tool   model.Tool
	schema *jsonschema.Schema
	handle localHandler
}

// localTools are the gateway's own profile tools, matched by exact name.
type localTools struct {
	profiles Profiles
	order    []string
	byName   map[string]*localTool
}

func newLocalTools(p Profiles) (*localTools, error) {
	lt := &localTools{profiles: p, byName: make(map[string]*localTool)}
	defs := []struct {
		tool   model.Tool
		handle localHandler
	}{
		{model.Tool{
			Name:        ToolGetProfile,
			Description: "Get company profile data from the gateway database",
			InputSchema: objectSchema(map[string]any{
				"companyId": stringProp("Company ID to retrieve profile for"),
			}, "companyId"),
		}, lt.getProfile},
		{model.Tool{
			Name:        ToolUpdateProfile,
			Description: "Update company profile data in the gateway database",
			InputSchema: objectSchema(map[string]any{
				"companyId":   stringProp("Company ID to update"),
				"profileData": map[string]any{"type": "object", "description": "Profile data to update"},
			}, "companyId", "profileData"),
		}, lt.updateProfile},
		{model.Tool{
			Name:        ToolDeleteProfile,
			Description: "Delete company profile data from the gateway database",
			InputSchema: objectSchema(map[string]any{
				"companyId": stringProp("Company ID to delete"),
			}, "companyId"),
		}, lt.deleteProfile},
		{model.Tool{
			Name:        ToolListProfiles,
			Description: "List all company profiles in the gateway database",
			InputSchema: objectSchema(map[string]any{
				"limit":  map[string]any{"type": "number", "minimum": 0, "description": "Maximum number of profiles to return (default: 50)"},
				"offset": map[string]any{"type": "number", "minimum": 0, "description": "Number of profiles to skip (default: 0)"},
			}),
		}, lt.listProfiles},
	}
	for _, d := range defs {
		schema, err := compileSchema(d.tool.Name, d.tool.InputSchema)
		if err != nil {
			return nil, err
		}
		lt.order = append(lt.order, d.tool.Name)
		lt.byName[d.tool.Name] = &localTool{tool: d.tool, schema: schema, handle: d.handle}
	}
	return lt, nil
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "minLength": 1, "description": desc}
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", name, err)
	}
	id := "inmemory://tools/" + name
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(id, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("add schema for %s: %w", name, err)
	}
	compiled, err := compiler.Compile(id)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", name, err)
	}
	return compiled, nil
}

func (lt *localTools) catalog() []model.Tool {
	out := make([]model.Tool, 0, len(lt.order))
	for _, name := range lt.order {
		out = append(out, lt.byName[name].tool)
	}
	return out
}

func (lt *localTools) call(ctx context.Context, call model.ToolCall) *model.ToolResult {
	t, ok := lt.byName[call.Name]
	if !ok {
		return model.ErrorResult(fmt.Sprintf("Unknown gateway tool: %s", call.Name))
	}
	args, err := normalizeArgs(call.Arguments)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("Invalid arguments for %s: %v", call.Name, err))
	}
	if err := t.schema.Validate(args); err != nil {
		return model.ErrorResult(fmt.Sprintf("Invalid arguments for %s: %v", call.Name, err))
	}
	return t.handle(ctx, args)
}

// normalizeArgs round-trips args through JSON so values have the types
// encoding/json produces, which is what the schema validator expects.
func normalizeArgs(args map[string]any) (map[string]any, error) {
	out := make(map[string]any)
	if len(args) == 0 {
		return out, nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (lt *localTools) getProfile(ctx context.Context, args map[string]any) *model.ToolResult {
	id, _ := args["companyId"].(string)
	lookup, err := lt.profiles.Get(ctx, id)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("Error retrieving company profile: %v", err))
	}
	return jsonResult(lookup.Profile)
}

type updateResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	CompanyID string    `json:"companyId"`
	UpdatedAt time.Time `json:"updatedAt"`
	Warning   string    `json:"warning,omitempty"`
}

func (lt *localTools) updateProfile(ctx context.Context, args map[string]any) *model.ToolResult {
	id, _ := args["companyId"].(string)
	data, _ := args["profileData"].(map[string]any)
	saved, err := lt.profiles.Update(ctx, id, data)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("Error updating company profile: %v", err))
	}
	return jsonResult(updateResponse{
		Success:   true,
		Message:   "Company profile updated successfully",
		CompanyID: saved.CompanyID,
		UpdatedAt: saved.UpdatedAt,
		Warning:   saved.Warning,
	})
}

type deleteResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	CompanyID string `json:"companyId"`
}

func (lt *localTools) deleteProfile(ctx context.Context, args map[string]any) *model.ToolResult {
	id, _ := args["companyId"].(string)
	deleted, err := lt.profiles.Delete(ctx, id)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("Error deleting company profile: %v", err))
	}
	if !deleted {
		return jsonResult(deleteResponse{Message: "Company profile not found", CompanyID: id})
	}
	return jsonResult(deleteResponse{Success: true, Message: "Company profile deleted successfully", CompanyID: id})
}

type listResponse struct {
	Success  bool             `json:"success"`
	Count    int              `json:"count"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
	Profiles []map[string]any `json:"profiles"`
}

func (lt *localTools) listProfiles(ctx context.Context, args map[string]any) *model.ToolResult {
	limit, _ := args["limit"].(float64)
	offset, _ := args["offset"].(float64)
	page, err := lt.profiles.List(ctx, int(limit), int(offset))
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("Error listing company profiles: %v", err))
	}
	return jsonResult(listResponse{
		Success:  true,
		Count:    page.Count,
		Total:    page.Total,
		Limit:    page.Limit,
		Offset:   page.Offset,
		Profiles: page.Profiles,
	})
}

func jsonResult(v any) *model.ToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("Error encoding result: %v", err))
	}
	return model.TextResult(string(data))
}
