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

import (
	"sort"
	"sync"
)

// TimeFormat is the layout of attack timestamps.
const TimeFormat = "2006-01-02 15:04:05"

// DefaultMaxAttacks is the number of attacks kept when not configured.
const DefaultMaxAttacks = 500

// Attack is a single connection or command shown on the attack map.
type Attack struct {
	IP           string  `json:"ip"`
	Port         int     `json:"port"`
	Service      string  `json:"service"`
	Timestamp    string  `json:"timestamp"`
	Location     string  `json:"location"`
	LocationType string  `json:"location_type"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	Command      *string `json:"command"`
}

// Stats summarizes the kept attacks.
type Stats struct {
	TotalAttacks    int     `json:"total_attacks"`
	UniqueAttackers int     `json:"unique_attackers"`
	PortsTargeted   []int   `json:"ports_targeted"`
	LatestAttack    *Attack `json:"latest_attack"`
}

// ServiceCount is the number of attacks on a service.
type ServiceCount struct {
	Service string
	Count   int
}

// AttackMap keeps the most recent attacks, oldest first.
type AttackMap struct {
	m sync.RWMutex

	max     int
	attacks []Attack
}

// NewAttackMap returns an AttackMap keeping at most max attacks.
func NewAttackMap(max int) *AttackMap {
	if max <= 0 {
		max = DefaultMaxAttacks
	}

	return &AttackMap{
		max:     max,
		attacks: []Attack{},
	}
}

// Add appends a, the oldest attack is dropped once full.
func (am *AttackMap) Add(a Attack) {
	am.m.Lock()
	defer am.m.Unlock()

	am.attacks = append(am.attacks, a)

	if over := len(am.attacks) - am.max; over > 0 {
		am.attacks = append([]Attack{}, am.attacks[over:]...)
	}
}

// Last returns the n most recent attacks, oldest first.
func (am *AttackMap) Last(n int) []Attack {
	am.m.RLock()
	defer am.m.RUnlock()

	start := 0
	if n >= 0 && len(am.attacks) > n {
		start = len(am.attacks) - n
	}

	return append([]Attack{}, am.attacks[start:]...)
}

// All returns every kept attack, oldest first.
func (am *AttackMap) All() []Attack {
	return am.Last(-1)
}

// Len returns the number of kept attacks.
func (am *AttackMap) Len() int {
	am.m.RLock()
	defer am.m.RUnlock()

	return len(am.attacks)
}

// Clear drops all attacks.
func (am *AttackMap) Clear() {
	am.m.Lock()
	defer am.m.Unlock()

	am.attacks = []Attack{}
}

// Stats returns the statistics of the kept attacks. The targeted ports are
// sorted.
func (am *AttackMap) Stats() Stats {
	am.m.RLock()
	defer am.m.RUnlock()

	ips := map[string]bool{}
	ports := map[int]bool{}

	for _, a := range am.attacks {
		ips[a.IP] = true
		ports[a.Port] = true
	}

	stats := Stats{
		TotalAttacks:    len(am.attacks),
		UniqueAttackers: len(ips),
		PortsTargeted:   []int{},
	}

	for port := range ports {
		stats.PortsTargeted = append(stats.PortsTargeted, port)
	}

	sort.Ints(stats.PortsTargeted)

	if len(am.attacks) > 0 {
		latest := am.attacks[len(am.attacks)-1]
		stats.LatestAttack = &latest
	}

	return stats
}

// Services returns the number of attacks per service, most attacked first.
func (am *AttackMap) Services() []ServiceCount {
	am.m.RLock()
	defer am.m.RUnlock()

	counts := map[string]int{}
	for _, a := range am.attacks {
		counts[a.Service]++
	}

	services := make([]ServiceCount, 0, len(counts))
	for service, count := range counts {
		services = append(services, ServiceCount{service, count})
	}

	sort.Slice(services, func(i, j int) bool {
		if services[i].Count != services[j].Count {
			return services[i].Count > services[j].Count
		}

		return services[i].Service < services[j].Service
	})

	return services
}
