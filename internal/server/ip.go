package server

import (
	"net"
	"net/http"
	"strings"
)

// ------------------------------------------------------------
// 호출 장치 IP 추출
//
// 카메라 장치와 aicamctl 은 ALB 뒤의 서버를 호출하므로
// RemoteAddr 는 ALB 주소다. access log 에 남길 실제 호출자 IP 는
// X-Forwarded-For 에서 찾는다.
// ------------------------------------------------------------

func parseIP(s string) net.IP {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return net.ParseIP(s)
}

// isRoutable 은 loopback / link-local / private 이 아닌 주소.
func isRoutable(ip net.IP) bool {
	return ip != nil &&
		!ip.IsPrivate() &&
		!ip.IsLoopback() &&
		!ip.IsLinkLocalUnicast() &&
		!ip.IsLinkLocalMulticast()
}

// remoteIP
//
// 우선순위:
//  1. X-Forwarded-For 의 첫 번째 routable 주소
//  2. RemoteAddr (사설망 장치가 직접 붙는 경우도 그대로 기록)
func remoteIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := parseIP(part); isRoutable(ip) {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := parseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}
