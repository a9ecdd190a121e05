/*
Package security groups the gateway's security packages.

  - tls: certificate resolution from route directories, the host-keyed
    certificate store and SNI selection during handshakes.
  - secrets: "${secret:name}" references for certificate passwords and
    admin API keys, resolved from the environment or a secrets directory.
  - auth: API-key authentication for the admin API.
*/
package security
