package dashboard

// HTML templates for the dashboard pages.

const layoutTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Stake Pool Dashboard</title>
    <link rel="stylesheet" href="/static/style.css">
</head>
<body>
    <nav class="nav">
        <a href="/" class="brand">Stake Pool</a>
        <a href="/" class="{{if eq .PageName "home"}}active{{end}}">Overview</a>
        <a href="/validators" class="{{if eq .PageName "validators"}}active{{end}}">Validators</a>
        <a href="/journal" class="{{if eq .PageName "journal"}}active{{end}}">Journal</a>
    </nav>

    <main class="container">
        {{.Content}}
    </main>

    <footer class="footer">stakepoold | <span id="current-time"></span></footer>
    <script src="/static/app.js"></script>
</body>
</html>`

const homeTemplate = `
<section class="cards">
    <div class="card">
        <p class="label">Exchange Rate</p>
        <p class="value" id="exchange-rate">{{formatNumber .ExchangeRate}}</p>
        <p class="hint">lamports per pool token</p>
    </div>
    <div class="card">
        <p class="label">Total Stake</p>
        <p class="value" id="total-stake">{{formatSOL .TotalStakeLamports}}</p>
        <p class="hint">SOL</p>
    </div>
    <div class="card">
        <p class="label">Pool Token Supply</p>
        <p class="value" id="pool-tokens">{{formatNumber .TotalPoolTokens}}</p>
    </div>
    <div class="card">
        <p class="label">Last Update Epoch</p>
        <p class="value" id="last-update-epoch">{{.LastUpdateEpoch}}</p>
        <p class="hint">version <span id="pool-version">{{.Version}}</span></p>
    </div>
</section>

<section class="cards">
    <div class="card">
        <p class="label">Reserve</p>
        <p class="value small">{{formatSOL .ReserveLamports}} SOL</p>
    </div>
    <div class="card">
        <p class="label">Validator Stake</p>
        <p class="value small">{{formatSOL .ValidatorStakeLamports}} SOL</p>
        <p class="hint">{{.ValidatorCount}} validators</p>
    </div>
    <div class="card">
        <p class="label">Transient Stake</p>
        <p class="value small">{{formatSOL .TransientLamports}} SOL</p>
    </div>
    <div class="card">
        <p class="label">Uptime</p>
        <p class="value small" id="uptime">{{formatDuration .Uptime}}</p>
    </div>
</section>

<section class="panel">
    <h2>Pool</h2>
    <table>
        <tr><th>Address</th><td class="mono">{{.Address}}</td></tr>
        <tr><th>Digest</th><td class="mono" id="digest">{{.Digest}}</td></tr>
    </table>
</section>

<section class="panel">
    <h2>Fees</h2>
    <table>
        <thead><tr><th>Kind</th><th>Current</th><th>Pending</th><th>Effective Epoch</th></tr></thead>
        <tbody>
        {{range .Fees}}
            <tr>
                <td>{{.Kind}}</td>
                <td class="mono">{{.Current}}</td>
                <td class="mono">{{if .Pending}}{{.Pending}}{{else}}-{{end}}</td>
                <td>{{if .Pending}}{{.EffectiveEpoch}}{{else}}-{{end}}</td>
            </tr>
        {{end}}
        </tbody>
    </table>
</section>

{{if .Endpoints}}
<section class="panel">
    <h2>Oracle Endpoints</h2>
    <table>
        <thead><tr><th>URL</th><th>Status</th><th>Epoch</th><th>Failures</th></tr></thead>
        <tbody>
        {{range .Endpoints}}
            <tr>
                <td class="mono">{{.URL}}</td>
                <td class="{{if .Healthy}}ok{{else}}bad{{end}}">{{if .Healthy}}Healthy{{else}}Unhealthy{{end}}</td>
                <td>{{.Epoch}}</td>
                <td>{{.FailCount}}</td>
            </tr>
        {{end}}
        </tbody>
    </table>
</section>
{{end}}
`

const validatorsTemplate = `
<section class="panel">
    <h2>Validators ({{len .Validators}} of {{.MaxValidators}})</h2>
    {{if .Preferred.Deposit}}<p class="hint">Preferred deposit: <span class="mono">{{.Preferred.Deposit}}</span></p>{{end}}
    {{if .Preferred.Withdraw}}<p class="hint">Preferred withdraw: <span class="mono">{{.Preferred.Withdraw}}</span></p>{{end}}
    {{if .Validators}}
    <table>
        <thead>
            <tr><th>Vote Account</th><th>Active (SOL)</th><th>Transient (SOL)</th><th>Direction</th><th>Last Update</th></tr>
        </thead>
        <tbody>
        {{$epoch := .LastUpdateEpoch}}
        {{range .Validators}}
            <tr>
                <td class="mono" title="{{.VoteAccount}}">{{truncateHash .VoteAccount.String 8}}</td>
                <td>{{formatSOL .ActiveStakeLamports}}</td>
                <td>{{formatSOL .TransientStakeLamports}}</td>
                <td>{{.TransientDirection}}</td>
                <td class="{{if lt .LastUpdateEpoch $epoch}}bad{{end}}">{{.LastUpdateEpoch}}</td>
            </tr>
        {{end}}
        </tbody>
    </table>
    {{else}}
    <p class="empty">No validators in the pool.</p>
    {{end}}
</section>
`

const journalTemplate = `
<section class="panel">
    <h2>Journal</h2>
    {{if .Unavailable}}
    <p class="empty">The journal is not available.</p>
    {{else if .Receipts}}
    <table>
        <thead>
            <tr><th>Version</th><th>Operation</th><th>Epoch</th><th>Time</th><th>Lamports</th><th>Pool Tokens</th><th>Fee Tokens</th></tr>
        </thead>
        <tbody>
        {{range .Receipts}}
            <tr>
                <td>{{.Version}}</td>
                <td>{{.Operation}}</td>
                <td>{{.Epoch}}</td>
                <td>{{formatTime .Timestamp}}</td>
                <td>{{formatNumber .Lamports}}</td>
                <td>{{formatNumber .PoolTokens}}</td>
                <td>{{formatNumber .FeeTokens}}</td>
            </tr>
        {{end}}
        </tbody>
    </table>
    {{else}}
    <p class="empty">No journal entries.</p>
    {{end}}
    <div class="pager">
        {{if gt .Page 1}}<a href="/journal?page={{sub .Page 1}}">Newer</a>{{end}}
        <span>Page {{.Page}}</span>
        {{if .HasNext}}<a href="/journal?page={{add .Page 1}}">Older</a>{{end}}
    </div>
</section>
`
