package web

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// asyncAPIVersion is the specification version of the generated document.
const asyncAPIVersion = "3.0.0"

// asyncAPIDocument aggregates the WebSocket annotations of every mounted
// component router into one AsyncAPI document. Channels are keyed by
// endpoint path; message payload schemas live under components.messages so
// a message shared by several endpoints (transcription_result) is defined
// once.
func (s *Server) asyncAPIDocument() map[string]any {
	title := s.cfg.System.Name
	if title == "" {
		title = "vestibule"
	}
	version := s.version
	if version == "" {
		version = "dev"
	}

	channels := map[string]any{}
	operations := map[string]any{}
	messages := map[string]any{}

	for _, p := range s.providers {
		prefix := p.Prefix()
		for _, route := range p.Routes() {
			if route.WS == nil {
				continue
			}
			path := prefix + route.Path

			chMessages := map[string]any{}
			for _, m := range append(route.WS.Receives, route.WS.Sends...) {
				chMessages[m.Name] = map[string]any{
					"$ref": "#/components/messages/" + m.Name,
				}
				if _, seen := messages[m.Name]; !seen {
					messages[m.Name] = map[string]any{
						"name":    m.Name,
						"payload": m.Schema,
					}
				}
			}

			channels[path] = map[string]any{
				"address":     path,
				"description": route.WS.Description,
				"messages":    chMessages,
			}

			if len(route.WS.Receives) > 0 {
				operations[operationID(path, "receive")] = operation(path, "receive", route.WS, route.WS.Receives)
			}
			if len(route.WS.Sends) > 0 {
				operations[operationID(path, "send")] = operation(path, "send", route.WS, route.WS.Sends)
			}
		}
	}

	return map[string]any{
		"asyncapi": asyncAPIVersion,
		"info": map[string]any{
			"title":       title + " WebSocket API",
			"version":     version,
			"description": "Streaming endpoints contributed by the assistant's components.",
		},
		"channels":   channels,
		"operations": operations,
		"components": map[string]any{"messages": messages},
	}
}

// operation builds one receive or send operation referencing the channel's
// messages.
func operation(path, action string, ann *WSAnnotation, msgs []Message) map[string]any {
	refs := make([]any, 0, len(msgs))
	for _, m := range msgs {
		refs = append(refs, map[string]any{
			"$ref": "#/channels/" + escapePointer(path) + "/messages/" + m.Name,
		})
	}
	op := map[string]any{
		"action":   action,
		"channel":  map[string]any{"$ref": "#/channels/" + escapePointer(path)},
		"messages": refs,
	}
	if len(ann.Tags) > 0 {
		tags := make([]any, 0, len(ann.Tags))
		for _, t := range ann.Tags {
			tags = append(tags, map[string]any{"name": t})
		}
		op["tags"] = tags
	}
	return op
}

// operationID derives a stable operation key from the channel path.
func operationID(path, action string) string {
	id := strings.Trim(path, "/")
	id = strings.NewReplacer("/", "_", "{", "", "}", "").Replace(id)
	return id + "_" + action
}

// escapePointer escapes a channel key for use inside a JSON pointer.
func escapePointer(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}

func (s *Server) handleAsyncAPIJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.asyncAPIDocument())
}

func (s *Server) handleAsyncAPIYAML(w http.ResponseWriter, r *http.Request) {
	data, err := yaml.Marshal(s.asyncAPIDocument())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "rendering AsyncAPI document failed")
		return
	}
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleAsyncAPIHTML(w http.ResponseWriter, r *http.Request) {
	doc := s.asyncAPIDocument()

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>WebSocket API</title>")
	b.WriteString("<style>body{font-family:sans-serif;margin:2em;max-width:60em}h2{border-bottom:1px solid #ccc}code{background:#f4f4f4;padding:0 .3em}</style>")
	b.WriteString("</head><body>")
	if info, ok := doc["info"].(map[string]any); ok {
		fmt.Fprintf(&b, "<h1>%s</h1><p>%s</p>", info["title"], info["description"])
	}

	channels, _ := doc["channels"].(map[string]any)
	paths := make([]string, 0, len(channels))
	for path := range channels {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		ch := channels[path].(map[string]any)
		fmt.Fprintf(&b, "<h2><code>%s</code></h2><p>%s</p>", path, ch["description"])
		if msgs, ok := ch["messages"].(map[string]any); ok {
			names := make([]string, 0, len(msgs))
			for name := range msgs {
				names = append(names, name)
			}
			sort.Strings(names)
			b.WriteString("<ul>")
			for _, name := range names {
				fmt.Fprintf(&b, "<li><code>%s</code></li>", name)
			}
			b.WriteString("</ul>")
		}
	}
	b.WriteString(`<p><a href="/asyncapi.json">JSON</a> · <a href="/asyncapi.yaml">YAML</a></p>`)
	b.WriteString("</body></html>")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(b.String()))
}
