// Copyright (c) 2026 John Earle
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

package callback

import "fmt"

const successPage = `<html>
<head><title>Authentication Successful</title></head>
<body>
<h1>Authentication Successful!</h1>
<p>You can now close this window and return to JobTrack.</p>
<script>setTimeout(() => window.close(), 3000);</script>
</body>
</html>
`

const errorPage = `<html>
<head><title>Authentication Failed</title></head>
<body>
<h1>Authentication Failed</h1>
<p>No authorization code was found in the redirect. Please try again.</p>
</body>
</html>
`

var (
	successResponse    = rawResponse("200 OK", successPage)
	badRequestResponse = rawResponse("400 Bad Request", errorPage)
)

func rawResponse(status, body string) string {
	return fmt.Sprintf("HTTP/1.1 %s\r\n"+
		"Content-Type: text/html; charset=utf-8\r\n"+
		"Content-Length: %d\r\n"+
		"Connection: close\r\n"+
		"\r\n%s", status, len(body), body)
}
