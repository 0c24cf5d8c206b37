// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tarpit

import (
	"encoding/json"
	"net/http"
)

// Static fallbacks keep the trap slow and boring even when the generator's
// backing store is down. They still stream line by line.
const (
	unavailablePage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Loading...</title>
    <meta name="robots" content="noindex, nofollow">
</head>
<body>
    <h1>Please wait</h1>
    <p>This resource is loading slowly due to high demand.</p>
    <p>Do not refresh the page; your place in the queue is preserved.</p>
</body>
</html>
`

	errorPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Service Unavailable</title>
    <meta name="robots" content="noindex, nofollow">
</head>
<body>
    <h1>Service temporarily unavailable</h1>
    <p>The requested document could not be prepared. Please retry shortly.</p>
</body>
</html>
`

	blockedPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Access Denied</title>
</head>
<body>
    <h1>403 Forbidden</h1>
    <p>Access Denied. Request frequency limit exceeded.</p>
</body>
</html>
`
)

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) > 0 {
			out[name] = values[0]
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
