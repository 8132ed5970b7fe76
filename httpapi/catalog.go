// Package httpapi implements the reference HTTP/JSON binding named in
// spec.md §6, grounded in webserver/api.py's route list and
// webserver/serialize.py's wire shapes, built on chi — the router the
// pack's own HTTP-serving repository (2389-research-mammoth) uses.
//
// This layer is an external collaborator over the core per spec.md §1: it
// holds no pipeline logic of its own, only translating JSON requests into
// calls against manager.Manager, importer.Importer, and store.Persistence.
// Of these, only Importer.Apply takes the FIFO lock; Pipeline's accessors
// take no lock, and no handler here reads Pipeline state directly.
package httpapi

import (
	"github.com/opensight-project/opensight/function"
	"github.com/opensight-project/opensight/manager"
	"github.com/opensight-project/opensight/widget"
)

// funcIO is the wire shape of one settings/inputs/outputs field, mirroring
// schema.py's InputOutputF: a type discriminator plus a params object.
type funcIO struct {
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params"`
}

// funcEntry is the wire shape of one registered Function, mirroring
// schema.py's FunctionF.
type funcEntry struct {
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	Settings map[string]funcIO `json:"settings"`
	Inputs   map[string]funcIO `json:"inputs"`
	Outputs  map[string]funcIO `json:"outputs"`
}

// moduleEntry is the wire shape of one registered module, mirroring
// schema.py's ModuleF.
type moduleEntry struct {
	Package string      `json:"package"`
	Version string      `json:"version"`
	Funcs   []funcEntry `json:"funcs"`
}

// catalogResponse is the GET /api/funcs response body, mirroring
// schema.py's SchemaF.
type catalogResponse struct {
	Modules []moduleEntry `json:"modules"`
}

func serializeWidget(t widget.Type, def interface{}) funcIO {
	params := t.Params()
	if def != nil {
		cp := make(map[string]interface{}, len(params)+1)
		for k, v := range params {
			cp[k] = v
		}
		cp["default"] = def
		params = cp
	}
	return funcIO{Type: string(t.Kind), Params: params}
}

func serializeIOSchema(schema function.IOSchema) map[string]funcIO {
	out := make(map[string]funcIO, len(schema))
	for name, t := range schema {
		out[name] = serializeWidget(t, nil)
	}
	return out
}

func serializeSettingsSchema(schema function.Settings) map[string]funcIO {
	out := make(map[string]funcIO, len(schema))
	for _, field := range schema {
		out[field.Name] = serializeWidget(field.Type, field.Default)
	}
	return out
}

// exportCatalog builds the GET /api/funcs response from the live Manager
// registry, mirroring export_manager.
func exportCatalog(mgr *manager.Manager) catalogResponse {
	modules := mgr.Modules()
	resp := catalogResponse{Modules: make([]moduleEntry, 0, len(modules))}

	for pkg, item := range modules {
		entry := moduleEntry{Package: pkg, Version: item.Info.Version}
		for _, d := range item.Funcs {
			entry.Funcs = append(entry.Funcs, funcEntry{
				Name:     d.Name,
				Type:     d.Type,
				Settings: serializeSettingsSchema(d.SettingsSchema),
				Inputs:   serializeIOSchema(d.InputsSchema),
				Outputs:  serializeIOSchema(d.OutputsSchema),
			})
		}
		resp.Modules = append(resp.Modules, entry)
	}
	return resp
}
