package main

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blocknetprivacy/blocksim/chain"
)

// Explorer serves a read-only HTML view of the simulator
type Explorer struct {
	daemon *Daemon
	logger *zap.Logger
	mux    *http.ServeMux
	server *http.Server
}

// NewExplorer creates a new explorer server
func NewExplorer(daemon *Daemon, logger *zap.Logger) *Explorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Explorer{
		daemon: daemon,
		logger: logger.With(zap.String("component", "explorer")),
		mux:    http.NewServeMux(),
	}
	e.mux.HandleFunc("GET /{$}", e.handleIndex)
	e.mux.HandleFunc("GET /block/{id}", e.handleBlock)
	e.mux.HandleFunc("GET /search", e.handleSearch)
	return e
}

// ServeHTTP implements http.Handler
func (e *Explorer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.mux.ServeHTTP(w, r)
}

func (e *Explorer) httpServer(addr string) *http.Server {
	handler := maxBodySize(e, maxRequestBodyBytes)
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Start serves the explorer on addr in the background.
func (e *Explorer) Start(addr string) {
	e.server = e.httpServer(addr)
	e.logger.Info("explorer listening", zap.String("addr", addr))
	go func() {
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.logger.Error("explorer server error", zap.Error(err))
		}
	}()
}

// Stop closes the explorer server.
func (e *Explorer) Stop() error {
	if e.server == nil {
		return nil
	}
	return e.server.Close()
}

type explorerBlockRow struct {
	ID        string
	Parent    string
	Hash      string
	Index     int64
	Ago       string
	TxCount   int
	Attacker  bool
	Active    bool
	Invalid   bool
	Inherited bool
}

func (e *Explorer) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := e.daemon.Session()
	view := sess.View()

	onActive := make(map[string]bool)
	for _, b := range sess.ActivePath() {
		onActive[b.ID] = true
	}

	var levels [][]explorerBlockRow
	heights := sess.BlocksByHeight()
	for i := len(heights) - 1; i >= 0; i-- {
		if len(heights[i]) == 0 {
			continue
		}
		row := make([]explorerBlockRow, 0, len(heights[i]))
		for _, b := range heights[i] {
			row = append(row, e.blockRow(b, view, onActive[b.ID]))
		}
		levels = append(levels, row)
	}

	var firstInvalid *chain.ValidationError
	if !view.Result.Valid {
		firstInvalid = view.Result.Errors[view.Result.FirstInvalidID]
	}

	data := map[string]any{
		"Blocks":       view.BlockCount,
		"Tips":         len(sess.Tips()),
		"Difficulty":   view.Difficulty,
		"Valid":        view.Result.Valid,
		"FirstInvalid": firstInvalid,
		"ActiveTip":    view.ActiveTip,
		"Mempool":      sess.Mempool(),
		"Levels":       levels,
		"Attack":       e.daemon.Attacker().Status(),
		"Tutorial":     e.daemon.Tutorial().Stage().String(),
	}

	e.renderTemplate(w, explorerIndexTmpl, data)
}

func (e *Explorer) blockRow(b *chain.Block, view View, active bool) explorerBlockRow {
	row := explorerBlockRow{
		ID:       b.ID,
		Parent:   b.Parent(),
		Hash:     b.Hash,
		Index:    b.Index,
		Ago:      timeAgo(b.Timestamp),
		TxCount:  len(b.Transactions),
		Attacker: b.IsAttacker,
		Active:   active,
	}
	if ve, bad := view.Result.Errors[b.ID]; bad {
		row.Invalid = true
		row.Inherited = ve.Kind == chain.InheritedInvalidity
	}
	return row
}

func (e *Explorer) handleBlock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess := e.daemon.Session()
	block, ok := sess.Block(id)
	if !ok {
		http.Error(w, "Block not found", http.StatusNotFound)
		return
	}

	// Validate the path ending here so the page is meaningful for blocks
	// off the active chain too.
	res, err := sess.ValidateTip(id)
	if err != nil {
		http.Error(w, "Block not found", http.StatusNotFound)
		return
	}

	var children []string
	for _, b := range sess.Blocks() {
		if b.Parent() == id {
			children = append(children, b.ID)
		}
	}

	data := map[string]any{
		"Block":      block,
		"Time":       time.UnixMilli(block.Timestamp).UTC().Format("2006-01-02 15:04:05 UTC"),
		"Error":      res.Errors[id],
		"PathValid":  res.Valid,
		"PathLength": res.Length,
		"IsGenesis":  chain.IsGenesis(block),
		"Children":   children,
		"Recomputed": chain.BlockDigest(block),
	}

	e.renderTemplate(w, explorerBlockTmpl, data)
}

func (e *Explorer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	blocks := e.daemon.Session().Blocks()
	if _, ok := blocks[q]; ok {
		http.Redirect(w, r, "/block/"+q, http.StatusFound)
		return
	}
	for id, b := range blocks {
		if strings.HasPrefix(id, q) || b.Hash == q {
			http.Redirect(w, r, "/block/"+id, http.StatusFound)
			return
		}
		for _, tx := range b.Transactions {
			if tx.ID == q {
				http.Redirect(w, r, "/block/"+id, http.StatusFound)
				return
			}
		}
	}

	http.Error(w, "Not found", http.StatusNotFound)
}

// timeAgo formats an epoch-millisecond timestamp relative to now.
func timeAgo(timestampMS int64) string {
	diff := (time.Now().UnixMilli() - timestampMS) / 1000
	if diff < 60 {
		return fmt.Sprintf("%ds ago", diff)
	} else if diff < 3600 {
		return fmt.Sprintf("%dm ago", diff/60)
	} else if diff < 86400 {
		return fmt.Sprintf("%dh ago", diff/3600)
	}
	return fmt.Sprintf("%dd ago", diff/86400)
}

var explorerFuncs = template.FuncMap{
	"short": shortID,
}

func (e *Explorer) renderTemplate(w http.ResponseWriter, tmplStr string, data any) {
	tmpl, err := template.New("page").Funcs(explorerFuncs).Parse(tmplStr)
	if err != nil {
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		e.logger.Warn("explorer template render failed", zap.Error(err))
	}
}

const explorerCSS = `*{margin:0;padding:0;box-sizing:border-box}
body{background:#000;color:#b0b0b0;font:15px/1.6 ui-monospace,SFMono-Regular,Menlo,Monaco,Consolas,monospace;padding:32px;max-width:900px;margin:0 auto}
a{color:#af0}
a:hover{color:#cf3}
h1,h2{color:#eee;font-weight:normal;margin:40px 0 16px}
h1{font-size:24px;margin-top:0}
h2{font-size:18px;border-bottom:1px dashed #333;padding-bottom:8px}
p{margin:16px 0}
.g{color:#af0}
.r{color:#f44}
.o{color:#fa0}
.d{color:#555}
.box{border:1px solid #333;padding:20px;margin:24px 0}
.stats{display:flex;justify-content:space-between}
.stat{text-align:center}
.stat-v{font-size:22px;color:#eee}
.stat-k{font-size:12px;color:#666;text-transform:uppercase}
table{width:100%;border-collapse:collapse;margin:16px 0}
th,td{text-align:left;padding:10px;border-bottom:1px solid #222}
th{color:#666;font-weight:normal;font-size:13px;text-transform:uppercase}
.hash{color:#666;font-size:13px}
.search{display:flex;gap:8px;margin:24px 0}
.search input{flex:1;background:#000;border:1px solid #333;color:#eee;padding:12px;font:inherit}
.search button{background:#af0;border:0;color:#000;padding:12px 24px;cursor:pointer;font:inherit}
.level{display:flex;gap:12px;align-items:center;padding:6px 0;border-bottom:1px solid #1a1a1a}
.level-k{width:48px;color:#666}
.node{border:1px solid #333;padding:4px 10px;font-size:13px}
.node.active{border-color:#af0}
.node.bad{border-color:#f44}
.node.atk{border-style:dashed;border-color:#fa0}
.prop{display:flex;padding:8px 0;border-bottom:1px solid #1a1a1a}
.prop:last-child{border:0}
.prop-k{width:160px;color:#666}
.prop-v{flex:1;word-break:break-all}
.prop-v.mono{font-size:12px;color:#888}
footer{margin-top:64px;padding-top:24px;border-top:1px dashed #333;color:#444;font-size:13px}`

const explorerIndexTmpl = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>blocksim explorer</title>
<meta http-equiv="refresh" content="5">
<style>` + explorerCSS + `</style>
</head>
<body>
<h1><span class="g">$</span> blocksim <span class="d">explorer</span></h1>

<form class="search" action="/search" method="get">
<input type="text" name="q" placeholder="Search by block id, hash or transaction id...">
<button type="submit">Search</button>
</form>

<div class="box stats">
<div class="stat"><div class="stat-v">{{.Blocks}}</div><div class="stat-k">Blocks</div></div>
<div class="stat"><div class="stat-v">{{.Tips}}</div><div class="stat-k">Tips</div></div>
<div class="stat"><div class="stat-v">{{.Difficulty}}</div><div class="stat-k">Difficulty</div></div>
<div class="stat"><div class="stat-v">{{if .Valid}}<span class="g">valid</span>{{else}}<span class="r">invalid</span>{{end}}</div><div class="stat-k">Active Chain</div></div>
</div>

{{with .FirstInvalid}}
<div class="box">
<p class="r">Block <a href="/block/{{.BlockID}}">{{short .BlockID}}</a>: {{.Explanation}}</p>
<p class="hash">{{.Technical}}</p>
</div>
{{end}}

{{if .Attack.Running}}
<p class="o">Attack running with {{.Attack.Power}}% hash power, {{.Attack.Blocks}} block(s) mined.</p>
{{end}}
<p class="d">Tutorial stage: {{.Tutorial}}</p>

<h2><span class="g">#</span> mempool</h2>
{{if .Mempool}}
<table>
<tr><th>Id</th><th>From</th><th>To</th><th>Amount</th></tr>
{{range .Mempool}}
<tr><td class="hash">{{short .ID}}</td><td>{{.From}}</td><td>{{.To}}</td><td>{{.Amount}}</td></tr>
{{end}}
</table>
{{else}}
<p class="d" style="padding:20px 0">Mempool is empty</p>
{{end}}

<h2><span class="g">#</span> block tree</h2>
{{range .Levels}}
<div class="level">
<div class="level-k">#{{(index . 0).Index}}</div>
{{range .}}
<a class="node{{if .Active}} active{{end}}{{if .Invalid}} bad{{end}}{{if .Attacker}} atk{{end}}" href="/block/{{.ID}}" title="{{.Hash}}">
{{short .ID}}{{if .Invalid}} <span class="r">✗</span>{{end}}
<span class="d">{{.TxCount}} tx · {{.Ago}}</span>
</a>
{{end}}
</div>
{{end}}

<footer>blocksim</footer>
</body>
</html>`

const explorerBlockTmpl = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>Block {{.Block.Index}} - blocksim explorer</title>
<style>` + explorerCSS + `</style>
</head>
<body>
<h1><a href="/" style="text-decoration:none;color:#eee"><span class="g">$</span> blocksim <span class="d">explorer</span></a></h1>

<h2><span class="g">#</span> block {{.Block.Index}}{{if .Block.IsAttacker}} <span class="o">attacker</span>{{end}}</h2>
{{with .Error}}
<div class="box">
<p class="r">{{.Explanation}}</p>
<p class="hash">{{.Kind}}: {{.Technical}}</p>
</div>
{{end}}
<div class="box">
<div class="prop"><div class="prop-k">Id</div><div class="prop-v">{{.Block.ID}}</div></div>
<div class="prop"><div class="prop-k">Hash</div><div class="prop-v mono">{{.Block.Hash}}</div></div>
<div class="prop"><div class="prop-k">Recomputed</div><div class="prop-v mono">{{.Recomputed}}</div></div>
{{if not .IsGenesis}}<div class="prop"><div class="prop-k">Parent</div><div class="prop-v"><a href="/block/{{.Block.Parent}}">{{.Block.Parent}}</a></div></div>{{end}}
<div class="prop"><div class="prop-k">Previous Hash</div><div class="prop-v mono">{{.Block.PreviousHash}}</div></div>
<div class="prop"><div class="prop-k">Time</div><div class="prop-v">{{.Time}}</div></div>
<div class="prop"><div class="prop-k">Difficulty</div><div class="prop-v">{{.Block.Difficulty}}</div></div>
<div class="prop"><div class="prop-k">Nonce</div><div class="prop-v">{{.Block.Nonce}}</div></div>
<div class="prop"><div class="prop-k">Path</div><div class="prop-v">{{.PathLength}} blocks, {{if .PathValid}}<span class="g">valid</span>{{else}}<span class="r">invalid</span>{{end}}</div></div>
</div>

{{if .Children}}
<p>Children: {{range .Children}}<a href="/block/{{.}}">{{short .}}</a> {{end}}</p>
{{end}}

<h2><span class="g">#</span> transactions</h2>
<table>
<tr><th>Id</th><th>From</th><th>To</th><th>Amount</th></tr>
{{range .Block.Transactions}}
<tr><td class="hash">{{short .ID}}</td><td>{{.From}}</td><td>{{.To}}</td><td>{{.Amount}}</td></tr>
{{end}}
</table>

<footer><a href="/">← explorer</a></footer>
</body>
</html>`
