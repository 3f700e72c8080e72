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
	"fmt"
	"net"

	maxminddb "github.com/oschwald/maxminddb-golang"
)

// Location types.
const (
	LocationLocal    = "Local"
	LocationInternal = "Internal"
	LocationRemote   = "Remote"
	LocationUnknown  = "Unknown"
	LocationError    = "Error"
)

var privateNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))

	for _, s := range cidrs {
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			panic(err)
		}

		networks = append(networks, n)
	}

	return networks
}

// Location is where an address is located.
type Location struct {
	Name string
	Type string
	Lat  float64
	Lon  float64
}

type cityRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	Location struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
}

// locator resolves the location of peers, using a GeoLite2 City database
// when one is configured.
type locator struct {
	db *maxminddb.Reader
}

func openLocator(path string) (*locator, error) {
	if path == "" {
		return &locator{}, nil
	}

	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening geoip database %s: %w", path, err)
	}

	log.Infof("Using geoip database %s", path)
	return &locator{db: db}, nil
}

// Locate returns the location of ip. Loopback and private addresses are
// never looked up.
func (l *locator) Locate(s string) Location {
	ip := net.ParseIP(s)

	if s == "localhost" || (ip != nil && ip.IsLoopback()) {
		return Location{Name: "Localhost", Type: LocationLocal}
	}

	if ip == nil {
		return Location{Name: "Unknown Location", Type: LocationUnknown}
	}

	for _, n := range privateNetworks {
		if n.Contains(ip) {
			return Location{Name: "Local Network", Type: LocationInternal}
		}
	}

	if l.db == nil {
		return Location{Name: "Unknown Location", Type: LocationUnknown}
	}

	var record cityRecord
	if err := l.db.Lookup(ip, &record); err != nil {
		log.Errorf("Error looking up location of %s: %s", s, err.Error())
		return Location{Name: "Geolocation Failed", Type: LocationError}
	}

	country := record.Country.Names["en"]
	if country == "" {
		return Location{Name: "Unknown Location", Type: LocationUnknown}
	}

	city := record.City.Names["en"]
	if city == "" {
		city = "Unknown City"
	}

	return Location{
		Name: fmt.Sprintf("%s, %s", city, country),
		Type: LocationRemote,
		Lat:  record.Location.Latitude,
		Lon:  record.Location.Longitude,
	}
}

func (l *locator) Close() error {
	if l.db == nil {
		return nil
	}

	return l.db.Close()
}
