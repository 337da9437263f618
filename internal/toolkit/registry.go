package toolkit

import (
	"sync"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/gemini-legion/legion/internal/channel"
)

// Registry manages tool registration and lookup.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	workDir  string
	channels *channel.Service
}

// NewRegistry creates a new tool registry. channels may be nil in tests
// that never register send_channel_message.
func NewRegistry(workDir string, channels *channel.Service) *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		workDir:  workDir,
		channels: channels,
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.ID()] = tool
}

// Get retrieves a tool by ID.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[id]
	return tool, ok
}

// List returns all registered tools.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	return tools
}

// IDs returns all tool IDs.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	return ids
}

// EinoTools returns Eino-compatible tools.
func (r *Registry) EinoTools() []einotool.BaseTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]einotool.BaseTool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t.EinoTool())
	}
	return tools
}

// ToolInfos returns Eino tool infos for all tools.
func (r *Registry) ToolInfos() ([]*schema.ToolInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]*schema.ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		params := parseJSONSchemaToParams(t.Parameters())
		infos = append(infos, &schema.ToolInfo{
			Name:        t.ID(),
			Desc:        t.Description(),
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return infos, nil
}

// Subset returns a new Registry containing only the named tools, for
// binding a persona's allowed_tools list to the Agent Runtime.
func (r *Registry) Subset(ids []string) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub := &Registry{
		tools:    make(map[string]Tool, len(ids)),
		workDir:  r.workDir,
		channels: r.channels,
	}
	for _, id := range ids {
		if t, ok := r.tools[id]; ok {
			sub.tools[id] = t
		}
	}
	return sub
}

// DefaultRegistry creates a registry with send_channel_message plus the
// filesystem/shell/search tools bindable via persona.allowed_tools.
// channels may be nil (in tests) if send_channel_message is never invoked.
func DefaultRegistry(workDir string, channels *channel.Service) *Registry {
	r := NewRegistry(workDir, channels)

	r.Register(NewSendChannelMessageTool(channels))

	r.Register(NewReadTool(workDir))
	r.Register(NewWriteTool(workDir))
	r.Register(NewEditTool(workDir))
	r.Register(NewBashTool(workDir))
	r.Register(NewGlobTool(workDir))
	r.Register(NewGrepTool(workDir))
	r.Register(NewListTool(workDir))
	r.Register(NewWebFetchTool(workDir))

	r.Register(NewBatchTool(workDir, r))

	return r
}
