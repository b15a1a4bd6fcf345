/*
File Name:  UPnP.go
Author:     Eastsea Contributors

Best-effort IGD port mapping over UPnP/SOAP. Grounded on the teacher's
upnp/UPnP.go SSDP-discover-then-SOAP-control flow; restructured around a
single internal gatewayClient type that owns both its control URL and a
set of local bookkeeping for what it has mapped, and split into smaller
single-purpose helpers (openSearchSocket / searchOnce / fetchDescription /
walkToWANIP)
instead of one long linear Discover/getServiceURL pair. The SOAP
envelope, SSDP search line and IGD XML schema field names are preserved
byte-for-byte since real routers parse them literally.
*/

package upnp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Gateway is the capability surface this package exposes for a
// discovered IGD: query the router's external address and manage TCP/UDP
// port forwards toward it.
type Gateway interface {
	GetExternalAddress() (net.IP, error)
	AddPortMapping(protocol string, internalIP net.IP, internalPort, externalPort uint16, description string, leaseSeconds int) (mappedPort uint16, err error)
	DeletePortMapping(protocol string, externalPort uint16) error
	// IsMapped reports whether this client has itself recorded a mapping
	// for protocol/externalPort. It never queries the router directly.
	IsMapped(protocol string, externalPort uint16) bool
	// RemoveAllPortMappings tears down every mapping this client added,
	// continuing past individual failures and surfacing the last error.
	RemoveAllPortMappings() error
}

// NAT is retained as an alias of Gateway for callers written against the
// teacher's original interface name.
type NAT = Gateway

const ssdpGroup = "239.255.255.250:1900"
const searchTarget = "InternetGatewayDevice:1"
const discoveryRounds = 3
const discoveryTimeout = 3 * time.Second

// gatewayClient is the concrete Gateway: a resolved WANIPConnection
// control URL plus the local record of ports it has forwarded.
type gatewayClient struct {
	controlURL string
	urnDomain  string
	sourceIP   net.IP

	mappingsMu sync.Mutex
	mappings   map[string]bool
}

func mappingKey(protocol string, externalPort uint16) string {
	return strings.ToUpper(protocol) + ":" + strconv.Itoa(int(externalPort))
}

// Discover probes the local segment for an IGD reachable from localIP
// and, if one answers within discoveryRounds attempts, returns a Gateway
// bound to its WANIPConnection control point.
func Discover(localIP net.IP) (Gateway, error) {
	socket, err := openSearchSocket(localIP)
	if err != nil {
		return nil, err
	}
	defer socket.Close()

	for attempt := 0; attempt < discoveryRounds; attempt++ {
		locationURL, err := searchOnce(socket)
		if err != nil {
			return nil, err
		}
		if locationURL == "" {
			continue
		}
		controlURL, urnDomain, err := fetchDescription(localIP, locationURL)
		if err != nil {
			return nil, err
		}
		return &gatewayClient{controlURL: controlURL, urnDomain: urnDomain, sourceIP: localIP}, nil
	}
	return nil, fmt.Errorf("upnp: no gateway answered %d search rounds", discoveryRounds)
}

// openSearchSocket binds a throwaway UDP4 socket on localIP with a
// discovery deadline already armed.
func openSearchSocket(localIP net.IP) (*net.UDPConn, error) {
	packetConn, err := net.ListenPacket("udp4", net.JoinHostPort(localIP.String(), "0"))
	if err != nil {
		return nil, err
	}
	socket := packetConn.(*net.UDPConn)
	if err := socket.SetDeadline(time.Now().Add(discoveryTimeout)); err != nil {
		socket.Close()
		return nil, err
	}
	return socket, nil
}

// searchOnce sends one SSDP M-SEARCH and drains replies until it finds
// one advertising searchTarget, returning its LOCATION header value (or
// "" if none of the replies in this round qualify).
func searchOnce(socket *net.UDPConn) (string, error) {
	dest, err := net.ResolveUDPAddr("udp4", ssdpGroup)
	if err != nil {
		return "", err
	}

	request := bytes.NewBufferString(
		"M-SEARCH * HTTP/1.1\r\n" +
			"HOST: 239.255.255.250:1900\r\n" +
			"ST: ssdp:all\r\n" +
			"MAN: \"ssdp:discover\"\r\n" +
			"MX: 2\r\n\r\n").Bytes()

	if err := socket.SetDeadline(time.Now().Add(discoveryTimeout)); err != nil {
		return "", err
	}
	if _, err := socket.WriteToUDP(request, dest); err != nil {
		return "", err
	}

	reply := make([]byte, 1024)
	for {
		n, _, err := socket.ReadFromUDP(reply)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return "", nil
			}
			return "", err
		}
		if loc, ok := locationFromReply(reply[:n]); ok {
			return loc, nil
		}
	}
}

// locationFromReply extracts the LOCATION header from a raw SSDP
// response, requiring the response to advertise searchTarget.
func locationFromReply(raw []byte) (string, bool) {
	text := string(raw)
	if !strings.Contains(text, searchTarget) {
		return "", false
	}

	// HTTP header field names are case-insensitive, so match lower-cased.
	lower := strings.ToLower(text)
	const header = "\r\nlocation:"
	start := strings.Index(lower, header)
	if start < 0 {
		return "", false
	}
	rest := lower[start+len(header):]
	end := strings.Index(rest, "\r\n")
	if end < 0 {
		return "", false
	}
	// Re-slice the original (non-lower-cased) text so the URL keeps its case.
	origStart := start + len(header)
	return strings.TrimSpace(text[origStart : origStart+end]), true
}

// igdService is one <service> element of an IGD description; fields
// beyond what control-URL resolution needs are left unparsed.
type igdService struct {
	ServiceType string `xml:"serviceType"`
	ControlURL  string `xml:"controlURL"`
}

type igdDeviceList struct {
	XMLName xml.Name    `xml:"deviceList"`
	Device  []igdDevice `xml:"device"`
}

type igdServiceList struct {
	XMLName xml.Name     `xml:"serviceList"`
	Service []igdService `xml:"service"`
}

// igdDevice is one <device> element; IGD descriptions nest these three
// levels deep (root device -> WAN device -> WAN connection device).
type igdDevice struct {
	XMLName     xml.Name       `xml:"device"`
	DeviceType  string         `xml:"deviceType"`
	DeviceList  igdDeviceList  `xml:"deviceList"`
	ServiceList igdServiceList `xml:"serviceList"`
}

type igdSpecVersion struct {
	XMLName xml.Name `xml:"specVersion"`
	Major   int      `xml:"major"`
	Minor   int      `xml:"minor"`
}

// igdRoot is the top-level <root> document a gateway serves at its
// LOCATION url.
type igdRoot struct {
	XMLName     xml.Name `xml:"root"`
	SpecVersion igdSpecVersion
	Device      igdDevice
}

// findDeviceByType searches the immediate children of parent for a
// device whose type contains deviceType.
func findDeviceByType(parent *igdDevice, deviceType string) *igdDevice {
	for i := range parent.DeviceList.Device {
		if strings.Contains(parent.DeviceList.Device[i].DeviceType, deviceType) {
			return &parent.DeviceList.Device[i]
		}
	}
	return nil
}

// findServiceByType searches the services directly offered by parent
// for one whose type contains serviceType.
func findServiceByType(parent *igdDevice, serviceType string) *igdService {
	for i := range parent.ServiceList.Service {
		if strings.Contains(parent.ServiceList.Service[i].ServiceType, serviceType) {
			return &parent.ServiceList.Service[i]
		}
	}
	return nil
}

// fetchDescription downloads the IGD XML description at rootURL and
// walks it down to the WANIPConnection control URL and its URN domain.
func fetchDescription(localIP net.IP, rootURL string) (controlURL, urnDomain string, err error) {
	client := lanHTTPClient(localIP)

	resp, err := client.Get(rootURL)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("upnp: description fetch returned status %d", resp.StatusCode)
	}

	var doc igdRoot
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", "", err
	}

	return walkToWANIP(rootURL, &doc.Device)
}

// walkToWANIP descends root -> WANDevice -> WANConnectionDevice and
// returns the WANIPConnection service's resolved control URL.
func walkToWANIP(rootURL string, root *igdDevice) (controlURL, urnDomain string, err error) {
	if !strings.Contains(root.DeviceType, searchTarget) {
		return "", "", fmt.Errorf("upnp: root device is not an %s", searchTarget)
	}

	wanDevice := findDeviceByType(root, "WANDevice:1")
	if wanDevice == nil {
		return "", "", fmt.Errorf("upnp: no WANDevice under root")
	}

	wanConnDevice := findDeviceByType(wanDevice, "WANConnectionDevice:1")
	if wanConnDevice == nil {
		return "", "", fmt.Errorf("upnp: no WANConnectionDevice under WANDevice")
	}

	svc := findServiceByType(wanConnDevice, "WANIPConnection:1")
	if svc == nil {
		// Some routers misplace WANIPConnection directly under WANDevice
		// rather than under WANConnectionDevice.
		svc = findServiceByType(wanDevice, "WANIPConnection:1")
		if svc == nil {
			return "", "", fmt.Errorf("upnp: no WANIPConnection service found")
		}
	}

	parts := strings.SplitN(svc.ServiceType, ":", 3)
	if len(parts) < 2 {
		return "", "", fmt.Errorf("upnp: malformed service type %q", svc.ServiceType)
	}
	return joinControlURL(rootURL, svc.ControlURL), parts[1], nil
}

// joinControlURL resolves a (possibly relative) control URL against the
// scheme+host portion of the description's root URL.
func joinControlURL(rootURL, controlURL string) string {
	const schemeSep = "://"
	schemeEnd := strings.Index(rootURL, schemeSep)
	afterScheme := rootURL[schemeEnd+len(schemeSep):]
	hostEnd := strings.Index(afterScheme, "/")
	return rootURL[:schemeEnd+len(schemeSep)+hostEnd] + controlURL
}

// lanHTTPClient builds an http.Client whose dials originate from
// localIP, with short timeouts appropriate for talking to a LAN gateway.
func lanHTTPClient(localIP net.IP) *http.Client {
	return &http.Client{
		Timeout: discoveryTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				LocalAddr: &net.TCPAddr{IP: localIP},
				Timeout:   discoveryTimeout,
				DualStack: true,
			}).DialContext,
			TLSHandshakeTimeout:   discoveryTimeout,
			ExpectContinueTimeout: time.Second,
		},
	}
}

// soapBody is the <s:Body> of a SOAP reply; its contents are kept raw
// so the caller can unmarshal whichever response type it expects.
type soapBody struct {
	XMLName xml.Name `xml:"Body"`
	Data    []byte   `xml:",innerxml"`
}

type soapEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    soapBody `xml:"Body"`
}

// invoke issues a SOAP action against this gateway's control URL and
// returns the unwrapped <s:Body> contents.
func (g *gatewayClient) invoke(action, innerXML string) ([]byte, error) {
	envelope := "<?xml version=\"1.0\" ?>" +
		"<s:Envelope xmlns:s=\"http://schemas.xmlsoap.org/soap/envelope/\" s:encodingStyle=\"http://schemas.xmlsoap.org/soap/encoding/\">\r\n" +
		"<s:Body>" + innerXML + "</s:Body></s:Envelope>"

	req, err := http.NewRequest(http.MethodPost, g.controlURL, strings.NewReader(envelope))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml ; charset=\"utf-8\"")
	req.Header.Set("User-Agent", "eastsea, UPnP/1.0")
	req.Header.Set("SOAPAction", fmt.Sprintf("\"urn:%s:service:WANIPConnection:1#%s\"", g.urnDomain, action))
	req.Header.Set("Connection", "Close")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := lanHTTPClient(g.sourceIP).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// With many routers (FritzBox among them) UPnP must be enabled
		// manually; a disallowed action comes back as HTTP 500 carrying
		// an <errorCode> in the SOAP fault body.
		return nil, fmt.Errorf("upnp: gateway returned status %d for %s", resp.StatusCode, action)
	}

	var reply soapEnvelope
	if err := xml.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, err
	}
	return reply.Body.Data, nil
}

type externalIPResponse struct {
	XMLName xml.Name `xml:"GetExternalIPAddressResponse"`
	Address string   `xml:"NewExternalIPAddress"`
}

// GetExternalAddress asks the gateway for its current WAN address.
func (g *gatewayClient) GetExternalAddress() (net.IP, error) {
	inner := fmt.Sprintf("<u:GetExternalIPAddress xmlns:u=\"urn:%s:service:WANIPConnection:1\">\r\n</u:GetExternalIPAddress>", g.urnDomain)

	raw, err := g.invoke("GetExternalIPAddress", inner)
	if err != nil {
		return nil, err
	}

	var reply externalIPResponse
	if err := xml.Unmarshal(raw, &reply); err != nil {
		return nil, err
	}

	addr := net.ParseIP(reply.Address)
	if addr == nil {
		return nil, fmt.Errorf("upnp: gateway returned unparsable address %q", reply.Address)
	}
	return addr, nil
}

// AddPortMapping forwards externalPort on the gateway to
// internalIP:internalPort for leaseSeconds (0 = no expiry). FritzBox
// routers accept re-forwarding an already-mapped port as a no-op, but
// reply with SOAP error 718 if internalPort is already forwarded under
// a different external port.
func (g *gatewayClient) AddPortMapping(protocol string, internalIP net.IP, internalPort, externalPort uint16, description string, leaseSeconds int) (uint16, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "<u:AddPortMapping xmlns:u=\"urn:%s:service:WANIPConnection:1\">\r\n", g.urnDomain)
	fmt.Fprintf(&b, "<NewRemoteHost></NewRemoteHost><NewExternalPort>%d</NewExternalPort>", externalPort)
	fmt.Fprintf(&b, "<NewProtocol>%s</NewProtocol>", strings.ToUpper(protocol))
	fmt.Fprintf(&b, "<NewInternalPort>%d</NewInternalPort><NewInternalClient>%s</NewInternalClient>", internalPort, internalIP.String())
	b.WriteString("<NewEnabled>1</NewEnabled><NewPortMappingDescription>")
	b.WriteString(description)
	fmt.Fprintf(&b, "</NewPortMappingDescription><NewLeaseDuration>%d</NewLeaseDuration></u:AddPortMapping>", leaseSeconds)

	if _, err := g.invoke("AddPortMapping", b.String()); err != nil {
		return 0, err
	}

	// Non-wildcard requests don't echo the assigned port back in the
	// reply body, so the requested port is taken as authoritative.
	g.recordMapping(protocol, externalPort)
	return externalPort, nil
}

// DeletePortMapping withdraws a previously added forward.
func (g *gatewayClient) DeletePortMapping(protocol string, externalPort uint16) error {
	inner := fmt.Sprintf(
		"<u:DeletePortMapping xmlns:u=\"urn:%s:service:WANIPConnection:1\">\r\n"+
			"<NewRemoteHost></NewRemoteHost><NewExternalPort>%d</NewExternalPort>"+
			"<NewProtocol>%s</NewProtocol></u:DeletePortMapping>",
		g.urnDomain, externalPort, strings.ToUpper(protocol))

	if _, err := g.invoke("DeletePortMapping", inner); err != nil {
		return err
	}

	g.forgetMapping(protocol, externalPort)
	return nil
}

func (g *gatewayClient) recordMapping(protocol string, externalPort uint16) {
	g.mappingsMu.Lock()
	defer g.mappingsMu.Unlock()
	if g.mappings == nil {
		g.mappings = make(map[string]bool)
	}
	g.mappings[mappingKey(protocol, externalPort)] = true
}

func (g *gatewayClient) forgetMapping(protocol string, externalPort uint16) {
	g.mappingsMu.Lock()
	defer g.mappingsMu.Unlock()
	delete(g.mappings, mappingKey(protocol, externalPort))
}

// IsMapped reports whether this client has itself recorded a mapping
// for protocol/externalPort; it does not query the gateway.
func (g *gatewayClient) IsMapped(protocol string, externalPort uint16) bool {
	g.mappingsMu.Lock()
	defer g.mappingsMu.Unlock()
	return g.mappings[mappingKey(protocol, externalPort)]
}

// RemoveAllPortMappings tears down every mapping this client has added,
// continuing past individual failures so one stuck entry doesn't block
// cleanup of the rest. It reports the last error encountered, if any.
func (g *gatewayClient) RemoveAllPortMappings() error {
	g.mappingsMu.Lock()
	keys := make([]string, 0, len(g.mappings))
	for key := range g.mappings {
		keys = append(keys, key)
	}
	g.mappingsMu.Unlock()

	var last error
	for _, key := range keys {
		protocol, portText, found := strings.Cut(key, ":")
		if !found {
			continue
		}
		port, err := strconv.Atoi(portText)
		if err != nil {
			continue
		}
		if err := g.DeletePortMapping(protocol, uint16(port)); err != nil {
			last = err
		}
	}
	return last
}
