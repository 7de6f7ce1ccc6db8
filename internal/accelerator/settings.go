// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package accelerator

import (
	"path/filepath"
	"strings"

	"github.com/juju/charm-virtual-accelerator/internal/packaging"
)

// Resource names declared in metadata.yaml.
const (
	CredentialsResource  = "credentials"
	LicenseResource      = "license"
	FastPathConfResource = "custom_fp_conf"
)

// Settings holds the static package names and paths of the product.
// They are deployment data rather than behaviour, so everything here can
// be overridden by the caller.
type Settings struct {
	// Product is the product package and, by default, its service.
	Product string

	// Services are restarted and stopped with the product.
	Services []string

	// Prerequisites are installed first, replacing existing config files.
	Prerequisites []string

	// Extensions provide the Nova VIF decorator.
	Extensions []string

	// RepositoryPackage is the name of the package the repository
	// download installs. "{distro}" and "{product}" are expanded.
	RepositoryPackage string

	// VendorPackages are apt patterns purged when the product is removed.
	VendorPackages []string

	// OVSPackage is held while the product is installed.
	OVSPackage string

	// VendorVersionTag marks versions of OVSPackage built by the vendor.
	VendorVersionTag string

	// PeerRestartServices are restarted by the service-control peer.
	PeerRestartServices []string

	LibvirtService string
	NovaPackage    string

	// VIFDecorators maps an OpenStack release to the module whose VIF
	// decorator Nova must monkey patch in.
	VIFDecorators map[string]string

	FastPathConfig string
	FPConfTool     string
	LicenseFile    string
	StartupScript  string
	CPUSetEnv      string
	CertsDir       string
	LSBRelease     string
	DownloadDir    string
}

// DefaultSettings returns the settings of a stock installation.
func DefaultSettings() Settings {
	const product = "virtual-accelerator"
	return Settings{
		Product:  product,
		Services: []string{product},
		Prerequisites: []string{
			"libvirt-daemon-system",
			"python3-libvirt",
			"qemu-kvm",
			"qemu-system-x86",
			"libcurl4",
			"libjansson4",
		},
		Extensions:          []string{"openstack-va-extensions"},
		RepositoryPackage:   "{product}-ubuntu-{distro}-repository",
		VendorPackages:      []string{"{product}-*"},
		OVSPackage:          "openvswitch-switch",
		VendorVersionTag:    "+va",
		PeerRestartServices: []string{"openvswitch-switch"},
		LibvirtService:      "libvirtd",
		NovaPackage:         "nova-common",
		VIFDecorators: map[string]string{
			"liberty": "openstack_va_extensions.liberty.nova.virt.libvirt.vif.decorator",
			"mitaka":  "openstack_va_extensions.mitaka.nova.virt.libvirt.vif.decorator",
		},
		FastPathConfig: "/usr/local/etc/fast-path.env",
		FPConfTool:     "fp-conf-tool",
		LicenseFile:    "/usr/local/etc/va.lic",
		StartupScript:  "/usr/local/bin/" + product + ".sh",
		CPUSetEnv:      "/usr/local/etc/cpuset.env",
		CertsDir:       "/usr/local/etc/certs",
		LSBRelease:     packaging.LSBReleasePath,
		DownloadDir:    "/var/cache/" + product,
	}
}

// CACert returns the path of the repository CA certificate.
func (s Settings) CACert() string {
	return filepath.Join(s.CertsDir, "ca.crt")
}

// ClientCert returns the path of the repository client certificate.
func (s Settings) ClientCert() string {
	return filepath.Join(s.CertsDir, "client.crt")
}

// ClientKey returns the path of the repository client key.
func (s Settings) ClientKey() string {
	return filepath.Join(s.CertsDir, "client.key")
}

func (s Settings) expand(pattern, distro string) string {
	return strings.NewReplacer("{product}", s.Product, "{distro}", distro).Replace(pattern)
}
