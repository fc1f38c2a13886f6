package server

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// TestPage serves an HTML page for exercising the WebSocket protocol by hand:
// log in, join a room, chat, and relay edits of a shared file.
func (h *Handler) TestPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		h.logger.Warn("error writing HTML response", zap.Error(err))
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>OfficeChat WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"], input[type="password"] { width: 200px; padding: 5px; margin-right: 10px; }
        textarea { width: 500px; height: 120px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>OfficeChat WebSocket Test</h1>

    <div>
        <input type="text" id="email" placeholder="email">
        <input type="password" id="password" placeholder="password">
        <button onclick="login()">Log in</button>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="room" value="global">
        <button onclick="emit('join', {room: val('room')})">Join</button>
        <button onclick="emit('leave', {room: val('room')})">Leave</button>
        <button onclick="emit('get_online_users')">Online users</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message...">
        <button onclick="sendMessage()">Send</button>
    </div>
    <div>
        <input type="text" id="fileId" placeholder="file id">
        <button onclick="emit('join_edit', {file_id: Number(val('fileId'))})">Edit</button>
        <button onclick="emit('leave_edit', {file_id: Number(val('fileId'))})">Stop editing</button>
    </div>
    <textarea id="editor" oninput="emit('text_change', {file_id: Number(val('fileId')), content: this.value})"></textarea>

    <div id="messages"></div>

    <script>
        let ws = null;
        let token = '';
        const messagesDiv = document.getElementById('messages');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');

        function val(id) { return document.getElementById(id).value.trim(); }

        function addMessage(text, color) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            el.style.color = color || 'gray';
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        async function login() {
            const res = await fetch('/api/login', {
                method: 'POST',
                headers: {'Content-Type': 'application/json'},
                body: JSON.stringify({email: val('email'), password: document.getElementById('password').value})
            });
            const body = await res.json();
            if (res.ok) {
                token = body.token;
                addMessage('Logged in as ' + body.user.email);
            } else {
                addMessage('Login failed: ' + body.message, 'red');
            }
        }

        function handleFrame(frame) {
            switch (frame.type) {
            case 'new_message':
                addMessage('[' + frame.data.room + '] ' + frame.data.sender + ' ' + frame.data.timestamp + ': ' + frame.data.message, 'green');
                break;
            case 'text_change':
                document.getElementById('editor').value = frame.data.content;
                addMessage(frame.data.author + ' changed file ' + frame.data.file_id);
                break;
            case 'error':
                addMessage('Error ' + frame.data.code + ': ' + frame.data.message, 'red');
                break;
            default:
                addMessage(frame.type + ' ' + JSON.stringify(frame.data));
            }
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws?token=' + encodeURIComponent(token));
            ws.onopen = function() { addMessage('Connected to OfficeChat server'); updateStatus(true); };
            ws.onmessage = function(event) {
                event.data.split('\n').forEach(function(line) {
                    if (line) { handleFrame(JSON.parse(line)); }
                });
            };
            ws.onclose = function() { addMessage('Connection closed'); updateStatus(false); ws = null; };
            ws.onerror = function() { addMessage('Connection error', 'red'); updateStatus(false); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function emit(type, data) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({type: type, data: data || {}}));
            }
        }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            if (input.value.trim()) {
                emit('message', {room: val('room'), message: input.value});
                input.value = '';
            }
        }
    </script>
</body>
</html>`
