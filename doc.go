/*
Package novasolaris provides primitives for orchestrating Solaris Zones as
compute instances.

nova-solaris is a compute host controller for Solaris. Desired state lives
in a distributed key value store; the compute daemon on each host realizes
it through the solariszones virt driver, which manages zones via the
native zones framework.

Data Model

A Host is a physical machine running the compute daemon.

A Flavor is a virtual resource template for instance creation. Its extra
specs select the zone brand (solaris for non-global zones, solaris-kz for
kernel zones) and zone configuration properties. An instance has a single
flavor.

An Instance is a virtual machine realized as a zone. At creation time a
flavor is required; a host is assigned at or after creation.

Lifecycle changes flow through jobs: the API enqueues a job, a worker
drives the zone through the driver, and the reconciler enqueues corrective
jobs when observed zones drift from desired state.
*/
package novasolaris
