package observation

// buildIPToDomain builds the ip->domain map from DNS observations: ties
// (the same IP seen under multiple domains) resolve to the most recently
// observed domain, which a single forward pass over dns (in measurement
// order) gives for free — later writes simply overwrite earlier ones.
func buildIPToDomain(dns []WebObservation) map[string]string {
	m := make(map[string]string, len(dns))
	for _, obs := range dns {
		if obs.Answer == nil || obs.DomainName == nil {
			continue
		}
		m[*obs.Answer] = *obs.DomainName
	}
	return m
}

// buildTLSValidityByDomain builds the domain->isCertificateValid map from
// TLS observations, one entry per handshake's resolved domain.
func buildTLSValidityByDomain(tls []WebObservation) map[string]bool {
	m := make(map[string]bool, len(tls))
	for _, obs := range tls {
		if obs.DomainName == nil || obs.TLSIsCertificateValid == nil {
			continue
		}
		m[*obs.DomainName] = *obs.TLSIsCertificateValid
	}
	return m
}

// consumeWebObservations runs the remainder of the cross-linking protocol
// and folds the four sub-streams into one ordered slice. tcp and tls are
// expected to already carry DomainName (the caller builds ipToDomain from
// dns via buildIPToDomain and passes it to makeTCPObservations/
// makeTLSObservations before calling this). This step builds
// tlsValidityByDomain from tls and back-annotates dns's IsTLSConsistent;
// output order is dns, tcp, tls, http, each preserving its own input order.
func consumeWebObservations(dns, tcp, tls, http []WebObservation) []WebObservation {
	tlsValidityByDomain := buildTLSValidityByDomain(tls)
	for i := range dns {
		if dns[i].Answer == nil {
			continue
		}
		if valid, ok := tlsValidityByDomain[*dns[i].Answer]; ok {
			v := valid
			dns[i].IsTLSConsistent = &v
		}
	}

	out := make([]WebObservation, 0, len(dns)+len(tcp)+len(tls)+len(http))
	out = append(out, dns...)
	out = append(out, tcp...)
	out = append(out, tls...)
	out = append(out, http...)
	return out
}
