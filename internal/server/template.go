package server

import "html/template"

var funcMap = template.FuncMap{
	"mb": func(n int) float64 { return float64(n) / (1 << 20) },
}

var page = template.Must(template.New("index").Funcs(funcMap).Parse(`
<!doctype html>
<html>
<head>
  <meta charset="utf-8">
  <title>PDF Merger</title>
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <style>
    :root { --border:#eee; --muted:#666; }
    * { box-sizing:border-box; }
    body { font-family: system-ui, -apple-system, Segoe UI, Roboto, sans-serif; margin: 24px; }
    h1 { margin:0 0 16px 0; font-size:22px; }
    .wrap { display:grid; grid-template-columns: 1fr 360px; gap:24px; }
    table { width:100%; border-collapse:collapse; }
    th, td { padding:8px 10px; border-bottom:1px solid var(--border); vertical-align:middle; }
    code { background:#f6f6f6; padding:2px 6px; border-radius:6px; font-size:12px; }
    .muted { color:var(--muted); font-size:12px; }
    .order { width:70px; padding:8px; border:1px solid #ddd; border-radius:8px; }
    .btn { padding:10px 14px; border:0; background:#111; color:#fff; border-radius:8px; cursor:pointer; }
    .btn:disabled { opacity:.5; cursor:not-allowed; }
    input[type="text"] { width:100%; padding:10px; border:1px solid #ddd; border-radius:8px; }
    form { margin-bottom:16px; }
    @media (max-width: 900px) { .wrap { grid-template-columns: 1fr; } }
  </style>
</head>
<body>
  <h1>PDF Merger</h1>
  <div class="muted">Up to {{.Capacity}} cached files, each kept for {{.TTL}}.</div>

  <div class="wrap">
    <div>
      <table>
        <thead>
          <tr><th style="width:56px;">Pick</th><th>File id</th><th>Size</th><th>Expires in</th><th style="width:90px;">Order</th></tr>
        </thead>
        <tbody>
          {{range .Files}}
          <tr>
            <td><input type="checkbox" class="pick" data-id="{{.ID}}"></td>
            <td><code>{{.ID}}</code></td>
            <td>{{printf "%.2f" (mb .Size)}} MB</td>
            <td>{{.ExpiresIn}}</td>
            <td><input type="number" class="order" data-id="{{.ID}}" min="1" step="1" placeholder="#"></td>
          </tr>
          {{else}}
          <tr><td colspan="5" class="muted">No cached files.</td></tr>
          {{end}}
        </tbody>
      </table>
    </div>

    <div>
      <h3>Cache a file</h3>
      <form id="upload">
        <input type="file" name="file" accept="application/pdf">
        <button class="btn" type="submit">Upload</button>
      </form>
      {{if .CanFetch}}
      <form id="byurl">
        <input type="text" name="url" placeholder="https://example.com/worksheet.pdf">
        <button class="btn" type="submit" style="margin-top:8px;">Fetch</button>
      </form>
      {{end}}

      <h3>Merge</h3>
      <input id="outname" type="text" placeholder="merged">
      <button id="mergeBtn" class="btn" style="margin-top:8px;">Merge selected files</button>
      <div id="status" style="margin-top:12px;"></div>
    </div>
  </div>

<script>
  const status = document.getElementById('status');

  function selection() {
    const orders = {};
    document.querySelectorAll('.order').forEach(inp => {
      const v = parseInt(inp.value || "0", 10);
      if (!isNaN(v) && v > 0) orders[inp.dataset.id] = v;
    });
    return Array.from(document.querySelectorAll('.pick:checked'))
      .map(cb => cb.dataset.id)
      .sort((a, b) => (orders[a] || 1e9) - (orders[b] || 1e9));
  }

  async function cache(resp) {
    const data = await resp.json();
    if (!resp.ok) { status.textContent = '❌ ' + (data.error || resp.status); return; }
    location.reload();
  }

  document.getElementById('upload').addEventListener('submit', async (e) => {
    e.preventDefault();
    await cache(await fetch('/api/pdf/cache-file', { method: 'POST', body: new FormData(e.target) }));
  });

  const byurl = document.getElementById('byurl');
  if (byurl) byurl.addEventListener('submit', async (e) => {
    e.preventDefault();
    await cache(await fetch('/api/pdf/cache-url', {
      method: 'POST',
      headers: {'Content-Type':'application/json'},
      body: JSON.stringify({ url: new FormData(e.target).get('url') })
    }));
  });

  document.getElementById('mergeBtn').addEventListener('click', async () => {
    const ids = selection();
    if (ids.length === 0) { status.textContent = 'Select at least one file.'; return; }
    const name = (document.getElementById('outname').value || 'merged').replace(/\s+/g, '_');
    const btn = document.getElementById('mergeBtn');
    btn.disabled = true;
    status.textContent = 'Merging...';
    try {
      const resp = await fetch('/api/pdf/merge-files?out=' + encodeURIComponent(name), {
        method: 'POST',
        headers: {'Content-Type':'application/json'},
        body: JSON.stringify({ ids: ids })
      });
      if (!resp.ok) {
        const data = await resp.json();
        status.textContent = '❌ ' + (data.error || 'Merge error');
        return;
      }
      const url = URL.createObjectURL(await resp.blob());
      status.innerHTML = '✅ Done: <a download="' + name + '.pdf" href="' + url + '">' + name + '.pdf</a>';
    } catch (e) {
      status.textContent = '❌ ' + e;
    } finally {
      btn.disabled = false;
    }
  });
</script>
</body>
</html>
`))
