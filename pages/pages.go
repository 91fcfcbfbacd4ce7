package pages

const style = `
    <style>
        body {
            font-family: Arial, sans-serif;
            line-height: 1.6;
            max-width: 800px;
            margin: 0 auto;
            padding: 20px;
        }
        pre {
            white-space: pre-wrap;
            word-wrap: break-word;
        }
        textarea { width: 100%; min-height: 160px; }
        li small { color: #666; }
    </style>`

var Landing = `
<!DOCTYPE html>
<html>
<head>
    <title>Setlistify</title>` + style + `
</head>
<body>
    <h1>Setlistify</h1>
    <p>Turn a concert setlist into a Spotify playlist. Paste the songs, upload a photo of the setlist, or link a setlist.fm page.</p>
    <p><a href="/auth">Log in with Spotify</a></p>
</body>
</html>`

// Search is where the OAuth callback lands. It posts to /search and
// /create-playlist with the session cookies.
var Search = `
<!DOCTYPE html>
<html>
<head>
    <title>Setlistify - Search</title>` + style + `
</head>
<body>
    <h1>Build a playlist</h1>
    <form id="search">
        <select name="inputType">
            <option value="text">Text</option>
            <option value="image">Photo</option>
            <option value="url">setlist.fm URL</option>
        </select>
        <p><textarea name="setlistText" placeholder="Song - Artist"></textarea></p>
        <p><input type="file" name="file" accept="image/*"></p>
        <p><input type="url" name="setlistUrl" placeholder="https://www.setlist.fm/setlist/..."></p>
        <button type="submit">Search</button>
    </form>
    <ol id="tracks"></ol>
    <form id="create" hidden>
        <input name="playlistName" placeholder="Playlist name">
        <label><input type="checkbox" name="isPublic"> Public</label>
        <button type="submit">Create playlist</button>
    </form>
    <pre id="status"></pre>
    <script>
        let picks = [];
        const status = document.getElementById("status");
        document.getElementById("search").onsubmit = async (e) => {
            e.preventDefault();
            const res = await fetch("/search", { method: "POST", body: new FormData(e.target) });
            const body = await res.json();
            if (!res.ok) { status.textContent = body.error; return; }
            const list = document.getElementById("tracks");
            list.innerHTML = "";
            picks = body.tracks.map((t) => (t.spotify[0] || {}).uri || null);
            body.tracks.forEach((t) => {
                const li = document.createElement("li");
                const hit = t.spotify[0];
                li.textContent = t.title + " - " + t.artist + " ";
                const small = document.createElement("small");
                small.textContent = hit ? hit.name + " / " + hit.artist : "no match";
                li.appendChild(small);
                list.appendChild(li);
            });
            document.getElementById("create").hidden = false;
        };
        document.getElementById("create").onsubmit = async (e) => {
            e.preventDefault();
            const form = new FormData(e.target);
            const res = await fetch("/create-playlist", {
                method: "POST",
                headers: { "Content-Type": "application/json" },
                body: JSON.stringify({
                    playlistName: form.get("playlistName"),
                    isPublic: form.get("isPublic") === "on",
                    uris: picks,
                }),
            });
            const body = await res.json();
            status.textContent = res.ok ? body.playlistUrl : body.error;
        };
    </script>
</body>
</html>`
