package dashboard

// getStaticAsset returns a static asset by name.
// Returns the content, content type, and whether the asset was found.
func getStaticAsset(name string) (content string, contentType string, ok bool) {
	switch name {
	case "style.css":
		return cssStyles, "text/css", true
	case "app.js":
		return jsApp, "application/javascript", true
	default:
		return "", "", false
	}
}

const cssStyles = `
:root {
    --color-primary: #3b82f6;
    --color-success: #10b981;
    --color-error: #ef4444;
    --color-bg-dark: #111827;
    --color-bg-card: #1f2937;
    --color-border: #374151;
    --color-text: #f9fafb;
    --color-text-muted: #9ca3af;
}

* { box-sizing: border-box; }

body {
    margin: 0;
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
    background-color: var(--color-bg-dark);
    color: var(--color-text);
    line-height: 1.6;
}

.mono { font-family: ui-monospace, SFMono-Regular, Menlo, Monaco, Consolas, monospace; }

.nav {
    display: flex;
    gap: 1rem;
    align-items: center;
    padding: 0 1.5rem;
    height: 4rem;
    background-color: var(--color-bg-card);
    border-bottom: 1px solid var(--color-border);
}
.nav a { color: var(--color-text-muted); text-decoration: none; padding: 0.5rem 0.75rem; border-radius: 0.375rem; }
.nav a.active, .nav a:hover { color: var(--color-text); background-color: var(--color-bg-dark); }
.nav .brand { color: var(--color-primary); font-weight: 700; font-size: 1.25rem; }

.container { max-width: 72rem; margin: 0 auto; padding: 1.5rem 1rem; }

.cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(14rem, 1fr)); gap: 1rem; margin-bottom: 1rem; }
.card, .panel {
    background-color: var(--color-bg-card);
    border: 1px solid var(--color-border);
    border-radius: 0.5rem;
    padding: 1.25rem;
}
.panel { margin-bottom: 1rem; }
.label { margin: 0; color: var(--color-text-muted); font-size: 0.875rem; }
.value { margin: 0.25rem 0 0; font-size: 1.875rem; font-weight: 700; }
.value.small { font-size: 1.25rem; }
.hint { margin: 0.25rem 0 0; color: var(--color-text-muted); font-size: 0.8rem; }
.empty { color: var(--color-text-muted); }

table { width: 100%; border-collapse: collapse; font-size: 0.875rem; }
th, td { text-align: left; padding: 0.5rem; border-bottom: 1px solid var(--color-border); }
th { color: var(--color-text-muted); font-weight: 500; }

.ok { color: var(--color-success); }
.bad { color: var(--color-error); }

.pager { display: flex; gap: 1rem; margin-top: 1rem; }
.pager a { color: var(--color-primary); }

.footer { text-align: center; color: var(--color-text-muted); font-size: 0.875rem; padding: 1rem; border-top: 1px solid var(--color-border); }
`

const jsApp = `
(function() {
    'use strict';

    const REFRESH_INTERVAL = 5000;

    function updateTime() {
        const el = document.getElementById('current-time');
        if (el) el.textContent = new Date().toUTCString();
    }

    function setText(id, value) {
        const el = document.getElementById(id);
        if (el && value !== undefined) el.textContent = value;
    }

    async function refreshStatus() {
        try {
            const resp = await fetch('/api/status');
            const data = await resp.json();
            setText('exchange-rate', data.exchangeRate?.toFixed(6));
            setText('pool-tokens', data.totalPoolTokens?.toLocaleString());
            setText('last-update-epoch', data.lastUpdateEpoch);
            setText('pool-version', data.version);
            setText('digest', data.digest);
            setText('uptime', data.uptime);
        } catch (e) {
            console.error('Failed to fetch status:', e);
        }
    }

    updateTime();
    setInterval(updateTime, 1000);
    if (window.location.pathname === '/') {
        setInterval(refreshStatus, REFRESH_INTERVAL);
    }
})();
`
