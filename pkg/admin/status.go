package admin

import (
	"fmt"
	"net/http"
	"time"

	"mercator-hq/gatehouse/pkg/proxy/middleware"
	gwtls "mercator-hq/gatehouse/pkg/security/tls"
)

type blockView struct {
	IP           string    `json:"ip"`
	Reason       string    `json:"reason"`
	BlockedUntil time.Time `json:"blocked_until"`
	CreatedAt    time.Time `json:"created_at"`
}

func (h *Handler) listBlocks(w http.ResponseWriter, _ *http.Request) {
	blocks := h.blocks.Blocked()
	out := make([]blockView, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, blockView{
			IP:           b.IP,
			Reason:       b.Reason,
			BlockedUntil: b.BlockedUntil,
			CreatedAt:    b.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocks": out, "count": len(out)})
}

func (h *Handler) unblock(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	if !h.blocks.Unblock(ip) {
		middleware.WriteError(w, http.StatusNotFound, "not_found", fmt.Sprintf("No active block for %s.", ip))
		return
	}
	h.logger.InfoContext(r.Context(), "Block lifted", "ip", ip, "actor", actor(r))
	w.WriteHeader(http.StatusNoContent)
}

type certificateView struct {
	Host            string    `json:"host"`
	Subject         string    `json:"subject"`
	Issuer          string    `json:"issuer"`
	DNSNames        []string  `json:"dns_names,omitempty"`
	NotBefore       time.Time `json:"not_before"`
	NotAfter        time.Time `json:"not_after"`
	DaysUntilExpiry int       `json:"days_until_expiry"`
	Warning         string    `json:"warning,omitempty"`
	ChainLength     int       `json:"chain_length"`
}

func (h *Handler) listCertificates(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	hosts := h.certs.ListHosts()
	out := make([]certificateView, 0, len(hosts))
	for _, host := range hosts {
		cert := h.certs.Resolve(host)
		if cert == nil {
			continue
		}
		info, err := gwtls.ExtractCertificateInfo(cert)
		if err != nil {
			h.logger.Warn("Failed to inspect certificate", "host", host, "error", err)
			continue
		}
		v := certificateView{
			Host:        host,
			Subject:     info.Subject,
			Issuer:      info.Issuer,
			DNSNames:    info.DNSNames,
			NotBefore:   info.NotBefore,
			NotAfter:    info.NotAfter,
			ChainLength: info.ChainLength,
		}
		if cert.Leaf != nil {
			v.DaysUntilExpiry, v.Warning = gwtls.CheckCertificateExpiration(cert.Leaf, now)
		} else {
			v.DaysUntilExpiry = int(info.NotAfter.Sub(now).Hours() / 24)
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"certificates": out, "count": len(out)})
}
