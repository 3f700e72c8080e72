// Copyright 2016-2019 DutchSec (https://dutchsec.com/)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package web

import "html/template"

// recentAttacks is the number of attacks listed on the index page.
const recentAttacks = 20

type page struct {
	Stats    Stats
	Services []ServiceCount
	Attacks  []Attack
	Targeted int
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
	<title>NetTrap - Real-Time Attack Map</title>
	<meta charset="utf-8" />
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<style>
		body { margin: 0; font-family: 'Segoe UI', Arial, sans-serif; background: #2d2f48; color: #333; }
		.container { max-width: 1200px; margin: 0 auto; padding: 20px; }
		.header { color: #fff; text-align: center; }
		.dashboard { display: grid; grid-template-columns: 1fr 1fr; gap: 20px; }
		.stats-card, .attacks-list { background: #fff; border-radius: 8px; padding: 20px; }
		.attacks-list { grid-column: 1 / -1; }
		.stat-item { display: flex; justify-content: space-between; padding: 4px 0; }
		.stat-value { font-weight: bold; }
		.attack-item { display: grid; grid-template-columns: 1fr 1fr 2fr 1fr; gap: 10px; padding: 6px 0; border-bottom: 1px solid #eee; }
		.service-badge { font-weight: bold; }
		@media (max-width: 768px) {
			.dashboard, .attack-item { grid-template-columns: 1fr; }
		}
	</style>
</head>
<body>
	<div class="container">
		<div class="header">
			<h1>NetTrap Attack Dashboard</h1>
			<div class="subtitle">Real-time honeypot attack monitoring</div>
		</div>

		<div class="dashboard">
			<div class="stats-card">
				<h3>Attack Statistics</h3>
				<div class="stat-item"><span>Total Attacks:</span><span class="stat-value" id="totalAttacks">{{.Stats.TotalAttacks}}</span></div>
				<div class="stat-item"><span>Unique Attackers:</span><span class="stat-value" id="uniqueAttackers">{{.Stats.UniqueAttackers}}</span></div>
				<div class="stat-item"><span>Ports Targeted:</span><span class="stat-value" id="portsTargeted">{{.Targeted}}</span></div>
				<div class="stat-item"><span>Latest Attack:</span><span class="stat-value" id="latestAttack">{{with .Stats.LatestAttack}}{{.Timestamp}}{{else}}None{{end}}</span></div>
			</div>

			<div class="stats-card">
				<h3>Service Distribution</h3>
				<div id="serviceDistribution">
				{{range .Services}}<div class="stat-item"><span>{{.Service}}:</span><span class="stat-value">{{.Count}}</span></div>
				{{else}}<div class="stat-item"><span>No attacks yet</span><span class="stat-value">0</span></div>
				{{end}}
				</div>
			</div>

			<div class="attacks-list">
				<h3>Recent Attacks (Last 20)</h3>
				<div class="attack-item">
					<div><strong>Service</strong></div>
					<div><strong>IP Address</strong></div>
					<div><strong>Location</strong></div>
					<div><strong>Time</strong></div>
				</div>
				<div id="attacks">
				{{range .Attacks}}<div class="attack-item">
					<span class="service-badge">{{.Service}}</span>
					<span class="ip-address">{{.IP}}</span>
					<span class="location">{{.Location}}</span>
					<span class="time">{{.Timestamp}}</span>
				</div>
				{{else}}<div class="empty">No attacks recorded yet. Wait for connections...</div>
				{{end}}
				</div>
			</div>
		</div>
	</div>

	<script>
		function refreshStats() {
			fetch('/api/stats')
				.then(response => response.json())
				.then(data => {
					document.getElementById('totalAttacks').textContent = data.total_attacks;
					document.getElementById('uniqueAttackers').textContent = data.unique_attackers;
					document.getElementById('portsTargeted').textContent = data.ports_targeted.length;
					if (data.latest_attack) {
						document.getElementById('latestAttack').textContent = data.latest_attack.timestamp;
					}
				});
		}

		var scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
		var ws = new WebSocket(scheme + location.host + '/ws');
		ws.onmessage = function(msg) {
			var m = JSON.parse(msg.data);
			if (m.type === 'attack') {
				refreshStats();
			}
		};

		setInterval(refreshStats, 5000);
	</script>
</body>
</html>
`))
