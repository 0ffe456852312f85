package machine

import (
	"fmt"
	"maps"
	"os"
)

// Driver produces the `docker-machine create` options for a cloud provider.
type Driver interface {
	Options() map[string]string
}

// Driver defaults.
const (
	DefaultDORegion        = "ams3"
	DefaultDOSize          = "s-1vcpu-2gb-amd"
	DefaultDOImage         = "ubuntu-18-04-x64"
	DefaultDockerInstall   = "https://releases.rancher.com/install-docker/19.03.9.sh"
	DefaultAWSRegion       = "eu-central-1"
	DefaultAWSInstanceType = "t2.micro"
	DefaultAWSAMI          = "ami-0b1deee75235aa4bb"
)

// DigitalOcean configures the digitalocean driver. Empty fields take the
// defaults; an empty Token falls back to $DO_API_TOKEN.
type DigitalOcean struct {
	Token         string
	Region        string
	Size          string
	Image         string
	DockerInstall string
}

// Options implements Driver.
func (d DigitalOcean) Options() map[string]string {
	return map[string]string{
		"driver":                    "digitalocean",
		"digitalocean-region":       orDefault(d.Region, DefaultDORegion),
		"digitalocean-size":         orDefault(d.Size, DefaultDOSize),
		"digitalocean-image":        orDefault(d.Image, DefaultDOImage),
		"digitalocean-access-token": orDefault(d.Token, os.Getenv("DO_API_TOKEN")),
		"engine-install-url":        orDefault(d.DockerInstall, DefaultDockerInstall),
	}
}

// AWS configures the amazonec2 driver. Empty keys fall back to
// $AWS_ACCESS_KEY and $AWS_SECRET_KEY.
type AWS struct {
	AccessKey    string
	SecretKey    string
	Region       string
	InstanceType string
	AMI          string
}

// Options implements Driver.
func (a AWS) Options() map[string]string {
	return map[string]string{
		"driver":                  "amazonec2",
		"amazonec2-access-key":    orDefault(a.AccessKey, os.Getenv("AWS_ACCESS_KEY")),
		"amazonec2-secret-key":    orDefault(a.SecretKey, os.Getenv("AWS_SECRET_KEY")),
		"amazonec2-region":        orDefault(a.Region, DefaultAWSRegion),
		"amazonec2-instance-type": orDefault(a.InstanceType, DefaultAWSInstanceType),
		"amazonec2-ami":           orDefault(a.AMI, DefaultAWSAMI),
	}
}

// DriverOptions returns the create options for the named driver with
// overrides applied on top. Drivers other than digitalocean and amazonec2
// only get "driver" plus the overrides; an empty driver gets the overrides
// alone, which must then name the driver themselves.
func DriverOptions(driver string, overrides map[string]string) (map[string]string, error) {
	var opts map[string]string
	switch driver {
	case "digitalocean":
		opts = DigitalOcean{}.Options()
	case "amazonec2", "aws":
		opts = AWS{}.Options()
	case "":
		if overrides["driver"] == "" {
			return nil, fmt.Errorf("no driver: set --driver or --option driver=<name>")
		}
		opts = make(map[string]string, len(overrides))
	default:
		opts = map[string]string{"driver": driver}
	}
	maps.Copy(opts, overrides)
	return opts, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
