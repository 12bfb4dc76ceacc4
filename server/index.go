package server

// indexHTML is a small browser client: it opens a websocket session, draws the
// streamed frames on a canvas and forwards pointer and slider input.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Echoes</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; background: #0f172a; color: #e2e8f0; }
        .container { max-width: 960px; margin: 0 auto; }
        h1 { color: #06b6d4; margin-bottom: 4px; }
        .meta { color: #94a3b8; margin-bottom: 16px; }
        canvas { background: #111827; border-radius: 8px; width: 100%; }
        .controls { display: flex; gap: 12px; align-items: center; margin: 12px 0; }
        input[type=text] { padding: 6px; border-radius: 4px; border: none; }
        input[type=range] { flex: 1; }
        button { background: #06b6d4; color: #0f172a; border: none; padding: 6px 14px; border-radius: 4px; cursor: pointer; }
        .narrative { line-height: 1.5; }
        form { margin-top: 24px; color: #94a3b8; }
    </style>
</head>
<body>
    <div class="container">
        <h1 id="title">Echoes</h1>
        <div class="meta" id="meta">Connecting...</div>
        <div class="controls">
            <input type="text" id="concept" placeholder="Concept" value="Freedom">
            <button id="open">Open</button>
            <input type="range" id="year" min="0" max="0" step="1">
            <span id="key"></span>
        </div>
        <canvas id="canvas" width="800" height="400"></canvas>
        <p class="narrative" id="narrative"></p>
        <form action="/upload" method="post" enctype="multipart/form-data">
            Upload a dataset (JSON, CSV or log):
            <input type="file" name="dataFile" required>
            <button type="submit">Upload</button>
        </form>
    </div>
    <script>
        const canvas = document.getElementById('canvas');
        const ctx = canvas.getContext('2d');
        const slider = document.getElementById('year');
        let ws = null, keys = [];

        function open(concept) {
            if (ws) ws.close();
            const proto = location.protocol === 'https:' ? 'wss' : 'ws';
            const q = new URLSearchParams({concept, width: canvas.width, height: canvas.height});
            ws = new WebSocket(proto + '://' + location.host + '/ws?' + q);
            ws.onmessage = (ev) => {
                const msg = JSON.parse(ev.data);
                if (msg.type === 'hello') {
                    keys = msg.keys || [];
                    slider.max = Math.max(keys.length - 1, 0);
                    slider.value = slider.max;
                    document.getElementById('title').textContent = msg.concept;
                    document.getElementById('meta').textContent = msg.timeRange || '';
                    if (msg.narrative) document.getElementById('narrative').textContent = msg.narrative.summary;
                } else if (msg.type === 'frame') {
                    draw(msg.frame);
                } else if (msg.type === 'error') {
                    document.getElementById('meta').textContent = msg.error;
                }
            };
        }

        function draw(frame) {
            document.getElementById('key').textContent = frame.key;
            ctx.clearRect(0, 0, canvas.width, canvas.height);
            const pos = {};
            frame.nodes.forEach(n => pos[n.id] = n);
            frame.links.forEach(l => {
                const a = pos[l.source], b = pos[l.target];
                if (!a || !b) return;
                ctx.strokeStyle = 'rgba(6,182,212,' + l.strength * 0.6 + ')';
                ctx.lineWidth = l.strength * 3;
                ctx.beginPath(); ctx.moveTo(a.x, a.y); ctx.lineTo(b.x, b.y); ctx.stroke();
            });
            frame.nodes.forEach(n => {
                const r = n.hovered ? n.size * 1.2 : n.size;
                ctx.fillStyle = n.color;
                ctx.beginPath(); ctx.arc(n.x, n.y, r, 0, Math.PI * 2); ctx.fill();
                if (n.hovered) { ctx.strokeStyle = '#fff'; ctx.lineWidth = 2; ctx.stroke(); }
                ctx.fillStyle = '#e2e8f0'; ctx.font = '12px Arial'; ctx.textAlign = 'center';
                ctx.fillText(n.label, n.x, n.y + r + 15);
            });
        }

        function send(msg) { if (ws && ws.readyState === 1) ws.send(JSON.stringify(msg)); }

        canvas.addEventListener('mousemove', (e) => {
            const rect = canvas.getBoundingClientRect();
            const sx = canvas.width / rect.width, sy = canvas.height / rect.height;
            send({type: 'pointer', x: (e.clientX - rect.left) * sx, y: (e.clientY - rect.top) * sy});
        });
        canvas.addEventListener('mouseleave', () => send({type: 'leave'}));
        slider.addEventListener('input', () => send({type: 'year', key: keys[slider.value]}));
        document.getElementById('open').addEventListener('click', () => open(document.getElementById('concept').value));

        const initial = new URLSearchParams(location.search).get('concept');
        if (initial) document.getElementById('concept').value = initial;
        open(document.getElementById('concept').value);
    </script>
</body>
</html>`
