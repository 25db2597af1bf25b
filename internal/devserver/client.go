package devserver

import (
	"bytes"
	"regexp"
)

const (
	routePrefix  = "/__assetpipe"
	reloadPath   = routePrefix + "/reload"
	statusPath   = routePrefix + "/status"
	clientPath   = routePrefix + "/client.js"
	clientScript = `(function () {
  if (!window.EventSource) { return; }
  var source = new EventSource("` + reloadPath + `");
  source.addEventListener("reload", function () {
    source.close();
    window.location.reload();
  });
})();
`
)

var (
	clientTag = []byte(`<script src="` + clientPath + `" async></script>`)
	bodyClose = regexp.MustCompile(`(?i)</body\s*>`)
)

// inject inserts the reload client before the last </body>, or appends it
// when the document has none.
func inject(html []byte) []byte {
	locs := bodyClose.FindAllIndex(html, -1)
	if len(locs) == 0 {
		return append(append(bytes.Clone(html), '\n'), clientTag...)
	}
	at := locs[len(locs)-1][0]

	out := make([]byte, 0, len(html)+len(clientTag))
	out = append(out, html[:at]...)
	out = append(out, clientTag...)
	return append(out, html[at:]...)
}
